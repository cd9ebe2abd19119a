package agent

// Card is the agent discovery document served at
// /.well-known/agent-card.json. Fetching it never requires payment.
type Card struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills"`
}

// Capabilities lists optional protocol features.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// Skill describes one thing the agent can do.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
}

// NewCard builds the card for the sentiment agent.
func NewCard(name, version, url string) Card {
	return Card{
		Name:               name,
		Description:        "Pay-per-call cryptocurrency sentiment analysis settled on Movement",
		URL:                url,
		Version:            version,
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Capabilities:       Capabilities{Streaming: false},
		Skills: []Skill{{
			ID:          "sentiment_agent",
			Name:        "Cryptocurrency Sentiment Analysis",
			Description: "Scores market text as bullish, bearish or neutral",
			Tags:        []string{"sentiment", "crypto", "analysis"},
			Examples: []string{
				"Get sentiment for Bitcoin over the last week",
				"Is the market mood around MOVE bullish?",
			},
		}},
	}
}
