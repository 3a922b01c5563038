package assembly

import (
	"fmt"
	"strings"

	"github.com/akulov/convopilot/internal/domain"
)

// FormatInput aggregates everything the formatter renders. All fields are
// optional except Target; missing data renders as defaults or is omitted.
type FormatInput struct {
	Target        *domain.Target
	Identities    []domain.TargetIdentity
	Platform      string
	CrossPlatform bool
	Style         domain.StyleProfile
	History       []domain.Message
	Categories    []string
	Samples       Samples
	AdminMode     bool
}

// BuildDocument renders the aggregated inputs into an ordered document.
// Pure: no randomness, no wall-clock reads, stable output for identical
// inputs.
func BuildDocument(in FormatInput) *Document {
	doc := &Document{}

	doc.Add("TARGET PROFILE", formatTarget(in.Target, in.Identities))
	doc.Add("PLATFORM", formatPlatform(in.Platform, in.CrossPlatform))
	doc.Add("COMMUNICATION STYLE", formatStyle(in.Style.Normalize()))
	doc.Add("CONVERSATION HISTORY", formatHistory(in.History))
	doc.Add("CATEGORIES", strings.Join(in.Categories, ", "))
	doc.Add("SUCCESSFUL EXAMPLES", formatExamples(in.Samples.Successful,
		"Past conversations that reached their goal. Borrow what worked."))
	doc.Add("FAILED EXAMPLES", formatExamples(in.Samples.Failed,
		"Past conversations that fell apart. Avoid these mistakes."))
	doc.Add("IMPROVEMENT EXAMPLES", formatExamples(in.Samples.Improvement,
		"Revisit the strongest conversations below with a more critical eye: what could have moved the goal forward sooner?"))
	doc.Add("INSTRUCTIONS", instructions)
	if in.AdminMode {
		doc.Add("ADMIN MODE", adminInstructions)
	}

	return doc
}

// FormatContext renders the full context blob.
func FormatContext(in FormatInput) string {
	return BuildDocument(in).Render()
}

const instructions = `You draft the operator's next message in this conversation.
Work toward the stated goal gradually: each reply should move the conversation one small, natural step forward, never the whole way at once.
Match the counterpart's communication style as described above: mirror their tone, pacing, message length, and preferred openings.
Stay consistent with everything already said in the conversation history.
Reply with the message text only.`

const adminInstructions = `After the reply, cite the reference message that informed it using exactly this tag: [ref: dialog=<dialog id> message=<message id>].
Omit the tag entirely when the reply is generic and no reference example informed it.`

func formatTarget(t *domain.Target, identities []domain.TargetIdentity) string {
	if t == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "name: %s\n", t.Name)
	if t.Goal != "" {
		fmt.Fprintf(&sb, "goal: %s\n", t.Goal)
	}
	if t.Notes != "" {
		fmt.Fprintf(&sb, "notes: %s\n", t.Notes)
	}
	for _, id := range identities {
		fmt.Fprintf(&sb, "identity: %s", id.Platform)
		if id.Username != "" {
			fmt.Fprintf(&sb, " @%s", strings.TrimPrefix(id.Username, "@"))
		}
		if id.NativeID != 0 {
			fmt.Fprintf(&sb, " (id %d)", id.NativeID)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatPlatform(platform string, cross bool) string {
	if cross {
		return "cross-platform aggregate: history below spans every platform this target is reachable on"
	}
	if platform == "" {
		return "platform: unknown"
	}
	return "platform: " + platform
}

func formatStyle(p domain.StyleProfile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "humor: %.2f (0 = serious, 1 = playful; range 0-1)\n", p.Humor)
	fmt.Fprintf(&sb, "formality: %.2f (0 = casual, 1 = formal; range 0-1)\n", p.Formality)
	fmt.Fprintf(&sb, "empathy: %.2f (0 = detached, 1 = warm; range 0-1)\n", p.Empathy)
	fmt.Fprintf(&sb, "question rate: %.2f (share of their messages that ask something; range 0-1)\n", p.QuestionRate)
	fmt.Fprintf(&sb, "engagement: %.2f (0 = brief replies, 1 = invested; range 0-1)\n", p.Engagement)
	fmt.Fprintf(&sb, "response cadence: %.0f seconds between replies on average (range 0-%d)\n", p.CadenceSeconds, domain.CadenceMaxSeconds)
	fmt.Fprintf(&sb, "average message length: %.0f characters (range 1-%d)\n", p.AvgMessageRunes, domain.MessageLengthMax)
	if p.PreferredOpening != "" {
		fmt.Fprintf(&sb, "preferred opening: %q\n", p.PreferredOpening)
	}
	return sb.String()
}

func formatHistory(history []domain.Message) string {
	if len(history) == 0 {
		return "(no prior messages - this is a new conversation)"
	}
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(formatMessage(m))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMessage(m domain.Message) string {
	sender := "them"
	if m.Outgoing {
		sender = "me"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s", m.NativeID, sender)
	if m.ReplyToNativeID != 0 {
		fmt.Fprintf(&sb, " (reply to %d)", m.ReplyToNativeID)
	}
	sb.WriteString(": ")
	if m.Body == "" {
		sb.WriteString("(no text)")
	} else {
		sb.WriteString(m.Body)
	}
	if m.HasMedia {
		sb.WriteString(" [media]")
	}
	return sb.String()
}

func formatExamples(examples []domain.ReferenceExample, framing string) string {
	if len(examples) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(framing)
	sb.WriteString("\n")
	for _, ex := range examples {
		fmt.Fprintf(&sb, "--- dialog %d (%s), score %.2f ---\n", ex.DialogID, ex.DisplayName, ex.Score)
		for _, m := range ex.Messages {
			sb.WriteString(formatMessage(m))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
