// Package question describes contest questions and reads them from TOML.
package question

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/caffeineduck/codearena/judge"
)

// Case is an input/output pair as stored and served.
type Case struct {
	Input  string `json:"input" toml:"input"`
	Output string `json:"output" toml:"output"`
}

// Question is one contest problem.
type Question struct {
	Number    int    `json:"question_number" toml:"number"`
	Title     string `json:"title" toml:"title"`
	Statement string `json:"question,omitempty" toml:"statement"`
	Template  string `json:"template" toml:"template"`
	Samples   []Case `json:"samples" toml:"samples"`
	Hidden    []Case `json:"hidden,omitempty" toml:"hidden"`
}

// ID is the identifier used in storage keys and URLs.
func (q Question) ID() string {
	return strconv.Itoa(q.Number)
}

// VisibleCases returns fresh, unrun test cases numbered from 1.
func (q Question) VisibleCases() []judge.TestCase {
	cases := make([]judge.TestCase, len(q.Samples))
	for i, s := range q.Samples {
		cases[i] = judge.TestCase{ID: i + 1, Input: s.Input, ExpectedOutput: s.Output}
	}
	return cases
}

func (q Question) HiddenCases() []judge.HiddenTestCase {
	cases := make([]judge.HiddenTestCase, len(q.Hidden))
	for i, h := range q.Hidden {
		cases[i] = judge.HiddenTestCase{Input: h.Input, ExpectedOutput: h.Output}
	}
	return cases
}

// Load reads a question file.
func Load(path string) (Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Question{}, fmt.Errorf("read question: %w", err)
	}
	return Parse(data)
}

// Parse decodes a question file. Unknown keys are rejected.
func Parse(data []byte) (Question, error) {
	var q Question
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		return Question{}, fmt.Errorf("parse question: %w", err)
	}
	if q.Number <= 0 {
		return Question{}, fmt.Errorf("parse question: number must be positive, got %d", q.Number)
	}
	return q, nil
}
