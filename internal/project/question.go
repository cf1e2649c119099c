package project

import (
	"context"
	"errors"
	"strings"

	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/wire"
)

// questionResult is how Answer hands the user's decision back to the
// goroutine suspended in Ask.
type questionResult struct {
	answer    string
	userInput string
}

// ErrQuestionPending is returned when the worker asks a second question
// while one is still unresolved.
var ErrQuestionPending = errors.New("project: a question is already pending")

// Ask presents a worker question to the user and blocks until it is
// answered, the context is canceled, or the worker is stopped.
//
// A non-internal question whose memoization key has a remembered answer is
// short-circuited: the stored answer is routed back immediately and no
// QuestionEvent reaches the UI. Internal questions always surface.
//
// On worker stop the suspended Ask resolves with a "n" answer so the caller
// never hangs.
func (p *Project) Ask(ctx context.Context, q wire.Question) (answer, userInput string, err error) {
	key := questionKey(q)

	p.mu.Lock()
	if !q.Internal {
		if stored, ok := p.remembered[key]; ok {
			p.mu.Unlock()
			debug.LogKV("project", "answering question from memory", "base_dir", p.baseDir, "key", key, "answer", stored)
			p.registry.Route(wire.KindAnswerQuestion, wire.Answer{Answer: stored})
			return stored, "", nil
		}
	}
	if p.question != nil {
		p.mu.Unlock()
		return "", "", ErrQuestionPending
	}
	ch := make(chan questionResult, 1)
	p.question = &q
	p.questionCh = ch
	p.mu.Unlock()

	p.emit(QuestionEvent{BaseDir: p.baseDir, Question: q})

	select {
	case res, ok := <-ch:
		if !ok {
			// Worker stopped under us; decline so the caller proceeds.
			return "n", "", nil
		}
		return res.answer, res.userInput, nil
	case <-ctx.Done():
		p.mu.Lock()
		if p.questionCh == ch {
			p.question = nil
			p.questionCh = nil
		}
		p.mu.Unlock()
		return "", "", ctx.Err()
	}
}

// PendingQuestion returns the unresolved question, or nil.
func (p *Project) PendingQuestion() *wire.Question {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.question == nil {
		return nil
	}
	q := *p.question
	return &q
}

// Answer resolves the pending question with the user's choice. raw is the
// user's decision ("y", "n", "a" = always yes, "d" = always no); userInput
// optionally carries extra text to hand the worker alongside the decision.
//
// "a" and "d" memoize: the normalized yes/no is stored under the question's
// key and replayed for future questions with the same key. The answer is
// routed to connectors unless the question was internal, in which case the
// asking goroutine alone consumes it. Returns whether a pending question was
// actually resolved.
func (p *Project) Answer(raw, userInput string) bool {
	norm, remember := normalizeAnswer(raw)

	p.mu.Lock()
	q := p.question
	ch := p.questionCh
	p.question = nil
	p.questionCh = nil
	if q != nil && remember {
		p.remembered[questionKey(*q)] = norm
	}
	p.mu.Unlock()

	if q == nil {
		return false
	}

	debug.LogKV("project", "question answered", "base_dir", p.baseDir, "answer", norm, "remembered", remember)
	if !q.Internal {
		p.registry.Route(wire.KindAnswerQuestion, wire.Answer{Answer: norm, UserInput: userInput})
	}
	if ch != nil {
		ch <- questionResult{answer: norm, userInput: userInput}
	}
	return true
}

// questionKey is the memoization key: the explicit key when the worker
// provides one, otherwise text plus subject.
func questionKey(q wire.Question) string {
	if q.Key != "" {
		return q.Key
	}
	return q.Text + "|" + q.Subject
}

// normalizeAnswer maps the user's decision onto the worker's yes/no wire
// vocabulary and reports whether it should be memoized.
func normalizeAnswer(raw string) (norm string, remember bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "a", "always":
		return "y", true
	case "d", "dont", "don't", "never":
		return "n", true
	case "y", "yes":
		return "y", false
	default:
		return "n", false
	}
}
