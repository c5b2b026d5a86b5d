package slack

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/aion-systems/aion-core/pkg/model"
)

const maxBlockTextLength = 2900

var riskEmoji = map[model.RiskLevel]string{
	model.RiskLow:    ":large_green_circle:",
	model.RiskMedium: ":large_yellow_circle:",
	model.RiskHigh:   ":red_circle:",
}

func dashboardProposalURL(dashboardURL, proposalID string) string {
	return fmt.Sprintf("%s/proposals/%s", dashboardURL, proposalID)
}

// BuildProposalCreatedMessage creates Block Kit blocks announcing a new
// pending Proposal awaiting human approval (spec §9 glossary: the
// notification is never authoritative — the HTTP API is the only way to
// actually decide it).
func BuildProposalCreatedMessage(p model.Proposal, dashboardURL string) []goslack.Block {
	emoji := riskEmoji[p.Risk]
	if emoji == "" {
		emoji = ":question:"
	}

	header := fmt.Sprintf("%s *Proposal awaiting approval* — risk: `%s`\n*%s*", emoji, p.Risk, p.Title)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if p.Description != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(p.Description), false, false),
			nil, nil,
		))
	}

	if len(p.Actions) > 0 {
		names := make([]string, 0, len(p.Actions))
		for _, a := range p.Actions {
			names = append(names, a.Name)
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, "*Proposed actions:* "+strings.Join(names, ", "), false, false),
			nil, nil,
		))
	}

	url := dashboardProposalURL(dashboardURL, p.ID)
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review Proposal", false, false))
	btn.URL = url
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — view full details in dashboard)_"
}
