package webhook

import "context"

// Card is the MessageCard payload accepted by Teams-style incoming webhooks.
type Card struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Color    string    `json:"color,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

type Section struct {
	ActivityTitle    string `json:"activityTitle"`
	ActivitySubtitle string `json:"activitySubtitle"`
	Facts            []Fact `json:"facts"`
	Markdown         bool   `json:"markdown"`
}

type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Provider interface {
	Post(ctx context.Context, url string, card Card) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Post(ctx context.Context, url string, card Card) error {
	return nil
}
