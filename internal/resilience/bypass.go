package resilience

// BypassConfig flags which platform-side logic to bypass on writes, sent as
// request headers by the executor. Each flag maps to one of the platform's
// documented bypass header tokens.
type BypassConfig struct {
	CustomLogic   bool
	Workflows     bool
	Flows         bool
	DuplicateRule bool
}

// Headers renders CustomLogic, Workflows and Flows as the
// "MSCRM.BypassCustomPluginExecution" header value the platform expects (a
// comma-separated list of bypassed logic types), and DuplicateRule as a
// separate "MSCRM.SuppressDuplicateDetection: true" header. It returns nil
// when nothing is bypassed.
func (b BypassConfig) Headers() map[string]string {
	var tokens []string
	if b.CustomLogic {
		tokens = append(tokens, "CustomSync")
	}
	if b.Workflows {
		tokens = append(tokens, "CustomAsync")
	}
	if b.Flows {
		tokens = append(tokens, "PowerAutomateFlows")
	}

	var headers map[string]string
	if len(tokens) > 0 {
		headers = map[string]string{"MSCRM.BypassCustomPluginExecution": joinComma(tokens)}
	}
	if b.DuplicateRule {
		if headers == nil {
			headers = map[string]string{}
		}
		headers["MSCRM.SuppressDuplicateDetection"] = "true"
	}
	return headers
}

func joinComma(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for _, item := range items[1:] {
		out += "," + item
	}
	return out
}
