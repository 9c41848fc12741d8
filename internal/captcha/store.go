// Package captcha implements a stateless question/answer challenge used as a
// low-assurance bot deterrent on the contact form.
package captcha

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	// PairSeparator separates question/answer pairs in the configuration string.
	PairSeparator = ";"
	// FieldSeparator separates a question from its answer.
	FieldSeparator = "|"
)

// Question is one challenge prompt and its expected answer.
type Question struct {
	Prompt string
	Answer string
}

// Store holds an immutable list of questions. The challenge id handed to
// callers is the question's index, so the same id always maps to the same
// question for the lifetime of the process and no session state is kept.
type Store struct {
	questions []Question
	intn      func(n int) int
}

// New returns a Store over a copy of questions.
func New(questions []Question) *Store {
	qs := make([]Question, len(questions))
	copy(qs, questions)
	return &Store{questions: qs, intn: rand.IntN}
}

// Parse reads "prompt|answer;prompt|answer" into questions. Blank pairs are
// skipped and surrounding whitespace is trimmed from prompts and answers.
func Parse(raw, pairSep, fieldSep string) ([]Question, error) {
	var questions []Question
	for i, pair := range strings.Split(raw, pairSep) {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		fields := strings.Split(pair, fieldSep)
		if len(fields) != 2 {
			return nil, fmt.Errorf("captcha pair %d: expected exactly one %q separator", i, fieldSep)
		}
		prompt := strings.TrimSpace(fields[0])
		answer := strings.TrimSpace(fields[1])
		if prompt == "" || answer == "" {
			return nil, fmt.Errorf("captcha pair %d: empty question or answer", i)
		}
		questions = append(questions, Question{Prompt: prompt, Answer: answer})
	}
	return questions, nil
}

// Issue picks a question uniformly at random and returns its id and prompt.
// The answer is never returned. Issue panics on an empty store; callers
// disable the challenge when no questions are configured.
func (s *Store) Issue() (int, string) {
	id := s.intn(len(s.questions))
	return id, s.questions[id].Prompt
}

// Verify reports whether answer matches the stored answer of question id.
// The comparison is exact and case-sensitive. Unknown ids never verify.
func (s *Store) Verify(id int, answer string) bool {
	if id < 0 || id >= len(s.questions) {
		return false
	}
	return s.questions[id].Answer == answer
}

// Len returns the number of loaded questions.
func (s *Store) Len() int {
	return len(s.questions)
}
