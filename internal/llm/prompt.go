package llm

import "strings"

// BuildSystemPrompt composes the instruction block: which table rows bound
// the billing month, the digit confusions worth correcting, and the exact
// output formats.
func BuildSystemPrompt(req ExtractRequest) string {
	parts := []string{
		"You are a utility meter reader. The photo shows a meter display or a reading log table.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"Identify the two readings that bound the most recent full billing month:",
		"the LAST reading of the previous month is the start, the LAST reading of the current month is the end.",
		"If the table has exactly two rows, the earlier row is the start and the later row is the end.",
		"Correct obvious digit misreads before output: letter O is digit 0, letter I or l is digit 1, letter S is digit 5, letter B is digit 8.",
		"Meter values are plain decimal numbers. Never include thousands separators, units, or leading zeros beyond the display.",
		"Dates must be formatted as YYYY-MM-DD HH:MM. If the display shows no time, use 00:00.",
		"Never output null. Never add fields beyond the schema.",
	}
	if hint := strings.TrimSpace(req.MeterHint); hint != "" {
		parts = append(parts, "The photo is of the meter named: "+hint+". If multiple registers are visible, read that one.")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the per-request nudge attached alongside the image part.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	b.WriteString("Extract the start and end readings from the attached meter photo.")
	if hint := strings.TrimSpace(req.MeterHint); hint != "" {
		b.WriteString(" Meter: ")
		b.WriteString(hint)
		b.WriteString(".")
	}
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}
