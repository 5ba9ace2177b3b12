package negotiation

import (
	"fmt"
	"strings"

	"github.com/dealdesk/dealdesk/internal/catalog"
)

// Prompt construction. Everything the reasoning service sees is rendered
// here, which keeps one reviewable seam for what each party may know: the
// buyer and the disclosure summary see public profile fields only; a
// counterparty's private pricing appears solely in its own system prompt,
// already reduced to an opening price table.

func buyerSystemPrompt(products []catalog.Product, quantities map[string]int, profiles []catalog.CounterpartyProfile, note string) string {
	var productLines []string
	for _, p := range products {
		productLines = append(productLines,
			fmt.Sprintf("  - %s (code: %s), qty: %d units", p.Name, p.Code, quantities[p.Code]))
	}

	noteSection := ""
	if note != "" {
		noteSection = fmt.Sprintf("\nThe sourcing team has this additional note: %s\n", note)
	}

	return fmt.Sprintf(`You are Alex Chen, Senior Procurement Manager at UrbanStride Footwear.

You are sourcing the following products:
%s

You know these counterparties and their public profiles:
%s
%s
Your goal: negotiate the best overall deal balancing cost, quality, lead time,
and payment terms. Push for lower prices, better terms, and faster delivery.
Be professional but firm. Do not reveal what other counterparties are quoting
in exact figures, only relative comparisons (e.g. "another supplier came in
lower on price").

IMPORTANT: Write ready-to-send messages. NEVER use bracket placeholders such
as [Name], [Company], [Your Contact Information], [insert deadline],
[Supplier Name], or any other [bracketed text]. Use your real identity above,
address counterparties by their known name, and omit any information you do
not have rather than inserting a placeholder.`,
		strings.Join(productLines, "\n"),
		formatProfiles(profiles),
		noteSection,
	)
}

func counterpartySystemPrompt(profile catalog.CounterpartyProfile, products []catalog.Product, quoted map[string]float64) string {
	var priceLines []string
	for _, p := range products {
		priceLines = append(priceLines,
			fmt.Sprintf("  - %s (code: %s): $%.2f per unit FOB", p.Name, p.Code, quoted[p.Code]))
	}

	return fmt.Sprintf(`You are %s, a footwear supplier with a quality rating of %.1f/5.

Your base lead time is %d days and your payment terms are %s.

Your opening quoted prices, already set for this negotiation:
%s

Quote these prices when first asked. You may offer discounts of up to 8%%
cumulatively over the course of the negotiation, but do NOT give everything
away at once. Negotiate realistically and push back when the buyer's requests
are too aggressive.

You may also:
- Suggest swapping specific materials or components for cheaper plausible alternatives (name them concretely based on the component list below).
- Slightly adjust lead time (up to 5 days either way) if it helps close a deal.
- Bundle volume incentives if the buyer orders multiple products.

Never reveal how your prices were set or any internal pricing targets. Respond
in natural, conversational business English. Be professional but firm; concede
ground gradually, not all at once.

IMPORTANT: Write ready-to-send messages. Never use bracket placeholders like
[Your Name], [Supplier Name], [Your Contact Information], or [insert deadline].
Always sign with your actual name: %s.

Product catalog you can supply:
%s`,
		profile.Name,
		profile.QualityRating,
		profile.LeadTimeDays,
		profile.PaymentTerms,
		strings.Join(priceLines, "\n"),
		profile.Name,
		formatCatalog(products),
	)
}

func openingInstruction(counterpartyName string) string {
	return fmt.Sprintf("Generate an RFQ message addressed to %s, listing the products and "+
		"quantities you need quoted. Keep it concise and professional. Sign off with your "+
		"name and title only, no placeholder contact information.", counterpartyName)
}

func counterInstruction(counterpartyName, reply, disclosure string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s replied:\n\n%s\n\n", counterpartyName, reply)
	fmt.Fprintf(&b, "Based on their reply above, write a professional counter-proposal or "+
		"follow-up addressed to %s by name. Push for better pricing, terms, or lead time. "+
		"If you have context about competing offers, use it as leverage without revealing "+
		"exact figures.", counterpartyName)
	if disclosure != "" {
		fmt.Fprintf(&b, "\n\n[Internal context, do NOT quote exact numbers to the counterparty: %s]", disclosure)
	}
	return b.String()
}

func decisionInstruction(profiles []catalog.CounterpartyProfile, positions map[string]string) string {
	var offers []string
	for _, p := range profiles {
		offers = append(offers,
			fmt.Sprintf("--- %s (id: %s) ---\n%s", p.Name, p.ID, positions[p.ID]))
	}

	return fmt.Sprintf(`You have completed negotiations with all counterparties. Here is a summary of their final offers:

%s

Counterparty profiles for reference:
%s

Select the best counterparty considering cost, quality rating, lead time, and
payment terms. Provide a detailed comparison and clear reasoning. The
comparison field must contain exactly one entry per counterparty, identified
by its id.`,
		strings.Join(offers, "\n\n"),
		formatProfiles(profiles),
	)
}

// peerDisclosure summarizes the other counterparties' standing for one
// buyer-side counter generation. Content is restricted to public profile
// attributes and a qualitative reading of each peer's reply; no figures and
// no private pricing parameters.
func peerDisclosure(excludeID string, profiles []catalog.CounterpartyProfile, replies map[string]string) string {
	var lines []string
	for _, p := range profiles {
		if p.ID == excludeID {
			continue
		}
		mention := "has responded"
		if strings.Contains(replies[p.ID], "$") {
			mention = "has quoted"
		}
		lines = append(lines,
			fmt.Sprintf("  - %s (quality %.1f/5, lead %dd) %s.", p.Name, p.QualityRating, p.LeadTimeDays, mention))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Other counterparties in this negotiation:\n" + strings.Join(lines, "\n")
}

func formatProfiles(profiles []catalog.CounterpartyProfile) string {
	var lines []string
	for _, p := range profiles {
		lines = append(lines,
			fmt.Sprintf("  - %s (id: %s): quality %.1f/5, lead time %d days, payment terms: %s",
				p.Name, p.ID, p.QualityRating, p.LeadTimeDays, p.PaymentTerms))
	}
	return strings.Join(lines, "\n")
}

func formatCatalog(products []catalog.Product) string {
	var lines []string
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("  - %s (code: %s)", p.Name, p.Code))
		for _, c := range p.Components {
			line := fmt.Sprintf("      * [%s] %s", c.Type, c.Name)
			if c.Composition != "" {
				line += fmt.Sprintf(", %s", c.Composition)
			}
			if c.Supplier != "" {
				line += fmt.Sprintf(" (from %s)", c.Supplier)
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
