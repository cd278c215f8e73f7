package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"property-agent/internal/domain"
	"property-agent/internal/offers"
)

const draftSystemPrompt = "You are a helpful assistant that writes professional real estate emails in HTML."

const revisionSystemPrompt = "You are a helpful assistant that writes and edits professional real estate emails in HTML."

type promptContext struct {
	pinnedPrompt string
	documents    []domain.Document
}

func buildPromptMessages(pc promptContext, message string, history []domain.ChatMessage, maxHistory int) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildPolicyPrompt()},
	}
	if pinned := strings.TrimSpace(pc.pinnedPrompt); pinned != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: pinned})
	}
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: buildOffersContextPrompt(pc.documents)})
	messages = append(messages, promptHistory(history, maxHistory)...)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: message,
	})
	return messages
}

func buildPolicyPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You are a real estate assistant helping an agent find property offers for a client.",
		"",
		"Task:",
		"Answer the current message using only the offers listed in this request.",
		"Recommend the offers that best match what the user asks for.",
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Never invent offers, prices or features that are not listed.",
		"2) If no listed offer fits, say so and suggest how the search could be broadened.",
		"3) Keep the tone professional and friendly.",
		"4) Prior conversation turns are context only; the listed offers are the source of truth.",
	}, "\n")
}

func outputContract() string {
	return strings.Join([]string{
		"Describe each recommended offer as its own paragraph separated by a blank line.",
		"Start the paragraph with the offer title on its own line, followed by one \"Label: value\" line per detail,",
		"for example Price, Location, Rooms, Bathrooms, Square footage, Garden, Amenities and Link.",
		"Write Amenities as a comma-separated list and Link as the listing URL.",
		"After the offers, end the reply with a fenced json code block of the form",
		"```json",
		`{"recommended_offer_ids": ["<id>", "..."]}`,
		"```",
		"listing the id of every offer you recommended, using only ids from the listed offers.",
		"Use an empty list when you recommend nothing.",
	}, "\n")
}

func buildOffersContextPrompt(docs []domain.Document) string {
	if len(docs) == 0 {
		return "Available Offers:\n\nNo offers matched this request."
	}
	var b strings.Builder
	b.WriteString("Available Offers:")
	for i, d := range docs {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			content = offers.PageContent(d.Offer)
		}
		fmt.Fprintf(&b, "\n\n[%d] id: %s\n%s", i+1, d.Offer.ID, content)
		if d.Offer.ListingURL != "" {
			fmt.Fprintf(&b, "\nLink: %s", d.Offer.ListingURL)
		}
	}
	return b.String()
}

// promptHistory keeps the newest user and assistant turns. Email previews and
// notices about them are not replayed to the model.
func promptHistory(history []domain.ChatMessage, limit int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		out = append(out, domain.ChatMessage{Role: m.Role, Content: content})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// offersJSON lists offers the way the draft prompt expects them: one object
// per offer carrying its title and attributes but not its store id.
func offersJSON(list []domain.Offer) (string, error) {
	stripped := make([]domain.Offer, len(list))
	for i, o := range list {
		o.VectorID = ""
		stripped[i] = o
	}
	raw, err := json.MarshalIndent(stripped, "", "  ")
	if err != nil {
		return "", fmt.Errorf("usecase: encode offers: %w", err)
	}
	return string(raw), nil
}

func buildDraftPrompt(form domain.EmailForm, offersJSON string) string {
	prompt := fmt.Sprintf(`You are an expert real estate agent. Write a professional, friendly, and persuasive email to %[1]s (the client) from %[2]s (the agent) with the following property offers. Your goal is to actively convince the client why these offers are great choices: highlight unique features, benefits, and what makes each property special. Use a warm, expert, and enthusiastic tone, as if you are personally recommending these properties to a valued client.

Format the email in HTML, and ensure:
- One line space before each offer title.
- One line space before the closing after the last offer.
- A warm greeting to %[1]s.
- A persuasive summary or introduction.
- For each offer: the title as a heading, all key details, a compelling explanation of why it's a great fit, and a link to view the property.
- A friendly closing with the agent's name (%[2]s).

Here are the offers (in JSON, each with a 'title' field):
%[3]s`, form.ClientName, form.AgentName, offersJSON)
	if note := strings.TrimSpace(form.AgentNote); note != "" {
		prompt += "\n\nAgent note: " + note
	}
	return prompt
}

func buildRevisionPrompt(draft, instruction string) string {
	return fmt.Sprintf(`You are an expert real estate agent assistant. Here is an email draft:
-----
%s
-----

Instruction: %s

Edit the email draft according to the instruction. Return the full revised email in HTML, preserving formatting and improving as needed.`, draft, instruction)
}
