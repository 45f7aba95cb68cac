package submission

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stemsi/whitelist-backend/internal/model"
)

const (
	colorClean   = 0x2ECC71
	colorFlagged = 0xE74C3C
	colorReceipt = 0x3498DB
)

// ReviewURL is the staff panel page of a submission.
func ReviewURL(panelBaseURL string, sub *model.Submission) string {
	return fmt.Sprintf("%s/staff/submissions/%s", panelBaseURL, sub.ID)
}

// Status is "CLEAN" or "FLAGGED (n)".
func Status(sub *model.Submission) string {
	if !sub.Flagged() {
		return "CLEAN"
	}
	return fmt.Sprintf("FLAGGED (%d)", len(sub.CheatAttempts))
}

// AuditEmbed is posted to the staff audit channel.
func AuditEmbed(sub *model.Submission, panelBaseURL string) *discordgo.MessageEmbed {
	color := colorClean
	if sub.Flagged() {
		color = colorFlagged
	}
	role := sub.HighestRole
	if role == "" {
		role = "none"
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("New application: %s", sub.QuizTitle),
		URL:         ReviewURL(panelBaseURL, sub),
		Description: fmt.Sprintf("<@%s> submitted an application.", sub.UserID),
		Color:       color,
		Timestamp:   sub.SubmittedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Applicant", Value: sub.Username, Inline: true},
			{Name: "Highest role", Value: role, Inline: true},
			{Name: "Answers", Value: fmt.Sprintf("%d", len(sub.Answers)), Inline: true},
			{Name: "Status", Value: Status(sub), Inline: true},
			{Name: "Review", Value: ReviewURL(panelBaseURL, sub)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Submission " + sub.ID.String()},
	}
}

// ReceiptEmbed is sent to the applicant as a DM.
func ReceiptEmbed(sub *model.Submission) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Application received",
		Description: fmt.Sprintf(
			"Thanks for applying to **%s**. Staff will review your answers and get back to you.",
			sub.QuizTitle,
		),
		Color:     colorReceipt,
		Timestamp: sub.SubmittedAt.Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Reference " + sub.ID.String()},
	}
}
