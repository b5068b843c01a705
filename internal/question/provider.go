// Package question defines the question provider collaborator interface
// and ships a static in-process bank for single-binary deployments.
package question

import (
	"fmt"

	"github.com/victornm/quizduel/internal/domain"
)

// Provider supplies the question for a given 0-based round index.
type Provider interface {
	NextQuestion(index int) (domain.Question, error)
}

// StaticProvider cycles through a fixed question bank.
type StaticProvider struct {
	bank []domain.Question
}

// NewStaticProvider returns a provider over the given bank, or over the
// built-in default bank when none is given.
func NewStaticProvider(bank ...domain.Question) *StaticProvider {
	if len(bank) == 0 {
		bank = defaultBank
	}
	return &StaticProvider{bank: bank}
}

func (p *StaticProvider) NextQuestion(index int) (domain.Question, error) {
	if index < 0 {
		return domain.Question{}, fmt.Errorf("question: negative index %d", index)
	}

	return p.bank[index%len(p.bank)], nil
}

var defaultBank = []domain.Question{
	{
		QuestionID:    "q-capital-france",
		Prompt:        "What is the capital of France?",
		Options:       []string{"London", "Paris", "Berlin", "Madrid"},
		CorrectOption: 1,
	},
	{
		QuestionID:    "q-largest-planet",
		Prompt:        "Which is the largest planet in the Solar System?",
		Options:       []string{"Earth", "Saturn", "Jupiter", "Neptune"},
		CorrectOption: 2,
	},
	{
		QuestionID:    "q-h2o",
		Prompt:        "H2O is the chemical formula of what?",
		Options:       []string{"Hydrogen peroxide", "Water", "Salt", "Ozone"},
		CorrectOption: 1,
	},
	{
		QuestionID:    "q-mona-lisa",
		Prompt:        "Who painted the Mona Lisa?",
		Options:       []string{"Michelangelo", "Raphael", "Leonardo da Vinci", "Donatello"},
		CorrectOption: 2,
	},
	{
		QuestionID:    "q-continents",
		Prompt:        "How many continents are there?",
		Options:       []string{"Five", "Six", "Seven", "Eight"},
		CorrectOption: 2,
	},
	{
		QuestionID:    "q-longest-river",
		Prompt:        "Which river is the longest in the world?",
		Options:       []string{"Amazon", "Nile", "Yangtze", "Mississippi"},
		CorrectOption: 1,
	},
	{
		QuestionID:    "q-romeo",
		Prompt:        "Who wrote Romeo and Juliet?",
		Options:       []string{"Charles Dickens", "William Shakespeare", "Jane Austen", "Mark Twain"},
		CorrectOption: 1,
	},
	{
		QuestionID:    "q-speed-light",
		Prompt:        "Approximately how fast does light travel in a vacuum?",
		Options:       []string{"300 km/s", "3,000 km/s", "30,000 km/s", "300,000 km/s"},
		CorrectOption: 3,
	},
	{
		QuestionID:    "q-smallest-prime",
		Prompt:        "What is the smallest prime number?",
		Options:       []string{"0", "1", "2", "3"},
		CorrectOption: 2,
	},
	{
		QuestionID:    "q-mount-everest",
		Prompt:        "In which mountain range is Mount Everest?",
		Options:       []string{"Andes", "Alps", "Himalayas", "Rockies"},
		CorrectOption: 2,
	},
}
