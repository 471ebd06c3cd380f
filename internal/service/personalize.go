package service

import (
	"fmt"
	"strings"

	"github.com/affiliatehq/outreach-backend/internal/model"
)

// PersonalizationSource renders outbound message content for a prospect.
// An external generation capability can replace the default renderer.
type PersonalizationSource interface {
	Render(t *model.MessageTemplate, p *model.Prospect) (subject, body string)
	RenderFollowUp(p *model.Prospect, followUpNumber int) (subject, body string)
	RenderInfoShare(p *model.Prospect, question string) (subject, body string)
}

// TemplateRenderer is the default placeholder-substitution renderer.
type TemplateRenderer struct{}

func (TemplateRenderer) Render(t *model.MessageTemplate, p *model.Prospect) (string, string) {
	return renderText(t.Subject, p), renderText(t.Content, p)
}

var followUpBodies = []string{
	"Hi {first_name}, just floating my earlier note back to the top of your inbox. Would love to hear what you think about partnering with us.",
	"Hi {first_name}, I know things get busy at {company}. Still keen to chat about our affiliate program whenever suits you.",
}

func (TemplateRenderer) RenderFollowUp(p *model.Prospect, followUpNumber int) (string, string) {
	body := followUpBodies[len(followUpBodies)-1]
	if followUpNumber-1 >= 0 && followUpNumber-1 < len(followUpBodies) {
		body = followUpBodies[followUpNumber-1]
	}
	subject := fmt.Sprintf("Following up (%d)", followUpNumber)
	return subject, renderText(body, p)
}

func (TemplateRenderer) RenderInfoShare(p *model.Prospect, question string) (string, string) {
	body := "Hi {first_name}, great question! Here is an overview of how the program works, commission tiers included. Happy to go deeper on any of it."
	return "More details on the program", renderText(body, p)
}

func renderText(text string, p *model.Prospect) string {
	result := text
	for key, value := range p.Attributes() {
		if value == "" {
			value = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}

var _ PersonalizationSource = TemplateRenderer{}
