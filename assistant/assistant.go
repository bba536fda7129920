// Package assistant answers free-text questions about the directory with an
// LLM. The model sees the cached listings and replies with a summary plus a
// list of results, each either a business id or a piece of text. Business
// ids are resolved against local state and unknown ids are dropped.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
)

// FailureHint is shown when no answer could be produced
const FailureHint = "उत्तर मिळवताना एक समस्या आली. कृपया पुन्हा प्रयत्न करा."

// Completer produces a model reply for a system and user prompt
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Directory is the local listing data the assistant searches
type Directory interface {
	Snapshot() types.Snapshot
	Lookup(id string) (types.Business, bool)
}

// ResultType distinguishes business results from text
type ResultType string

const (
	ResultBusiness ResultType = "business"
	ResultText     ResultType = "text"
)

// Result is one item of an answer
type Result struct {
	Type     ResultType      `json:"type"`
	Business *types.Business `json:"business,omitempty"`
	Text     string          `json:"text,omitempty"`
}

// Answer is the assistant's reply to one question
type Answer struct {
	Summary string   `json:"summary"`
	Results []Result `json:"results"`
}

// Assistant searches a Directory with a Completer
type Assistant struct {
	llm    Completer
	dir    Directory
	logger *zap.SugaredLogger
}

// New creates an assistant
func New(llm Completer, dir Directory, log *zap.SugaredLogger) *Assistant {
	return &Assistant{llm: llm, dir: dir, logger: log}
}

type listing struct {
	ID        string   `json:"id"`
	ShopName  string   `json:"shop_name"`
	OwnerName string   `json:"owner_name"`
	Category  string   `json:"category"`
	Services  []string `json:"services"`
	Contact   string   `json:"contact"`
}

type rawAnswer struct {
	Summary string `json:"summary"`
	Results []struct {
		Type       string `json:"type"`
		BusinessID string `json:"business_id"`
		Content    string `json:"content"`
		Text       string `json:"text"`
	} `json:"results"`
}

const systemPrompt = `You are a helpful assistant for the "Jawala Business Directory".
Understand the user's request, which is usually in Marathi, and answer from the business list you are given.

Respond with a JSON object containing:
1. "summary": a short, conversational summary of your findings in Marathi.
2. "results": an array where each item is either
   - {"type": "business", "business_id": "<id>"} for a relevant business from the list, or
   - {"type": "text", "content": "<answer>"} when the user asks for specific information or no business matches well.

List every relevant business. If the request is generic or nothing matches, give a friendly text result.`

// Ask answers query from the current directory
func (a *Assistant) Ask(ctx context.Context, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, errors.WithHint(errors.NewInvalidRequestError("empty question"), "Please type a question.")
	}

	prompt, err := a.userPrompt(query)
	if err != nil {
		return Answer{}, err
	}

	reply, err := a.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return Answer{}, errors.WithHint(errors.Wrap(err, "ask assistant"), FailureHint)
	}

	answer, err := a.parse(reply)
	if err != nil {
		return Answer{}, errors.WithHint(err, FailureHint)
	}
	a.logger.Debugw("Assistant answered",
		logger.FieldQuery, query,
		logger.FieldCount, len(answer.Results),
	)
	return answer, nil
}

func (a *Assistant) userPrompt(query string) (string, error) {
	snap := a.dir.Snapshot()
	names := make(map[string]string, len(snap.Categories))
	for _, c := range snap.Categories {
		names[c.ID] = c.Name
	}

	listings := make([]listing, 0, len(snap.Businesses))
	for _, b := range snap.Businesses {
		category, ok := names[b.Category]
		if !ok {
			category = "Unknown"
		}
		listings = append(listings, listing{
			ID:        b.ID,
			ShopName:  b.ShopName,
			OwnerName: b.OwnerName,
			Category:  category,
			Services:  b.Services,
			Contact:   b.ContactNumber,
		})
	}
	raw, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode business list")
	}
	return fmt.Sprintf("Here is the list of all available businesses:\n%s\n\nUser's request: %q", raw, query), nil
}

// parse decodes the model reply, tolerating a fenced code block around the
// JSON, and resolves business ids
func (a *Assistant) parse(reply string) (Answer, error) {
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "```") {
		reply = strings.TrimPrefix(reply, "```json")
		reply = strings.TrimPrefix(reply, "```")
		reply = strings.TrimSuffix(strings.TrimSpace(reply), "```")
	}

	var raw rawAnswer
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return Answer{}, errors.Wrap(err, "decode assistant reply")
	}

	answer := Answer{Summary: strings.TrimSpace(raw.Summary), Results: []Result{}}
	for _, r := range raw.Results {
		switch ResultType(r.Type) {
		case ResultBusiness:
			b, ok := a.dir.Lookup(r.BusinessID)
			if !ok {
				a.logger.Debugw("Assistant referenced unknown business", logger.FieldBusinessID, r.BusinessID)
				continue
			}
			answer.Results = append(answer.Results, Result{Type: ResultBusiness, Business: &b})
		case ResultText:
			text := r.Content
			if text == "" {
				text = r.Text
			}
			if text = strings.TrimSpace(text); text != "" {
				answer.Results = append(answer.Results, Result{Type: ResultText, Text: text})
			}
		}
	}
	return answer, nil
}
