package model

// GeneratedContent is the structured result of the generation step.
type GeneratedContent struct {
	Category               string           `json:"category"`
	Summary                string           `json:"summary"`
	UniqueValueProposition string           `json:"uniqueValueProposition"`
	TargetCustomers        []string         `json:"targetCustomers"`
	PainPoints             []string         `json:"painPoints"`
	Features               []string         `json:"features"`
	RepresentativeCase     string           `json:"representativeCase"`
	PricingOverview        string           `json:"pricingOverview"`
	EmbeddingContext       EmbeddingContext `json:"embeddingContext"`
}

// EmbeddingContext is the text payload handed to downstream indexing.
type EmbeddingContext struct {
	Version string   `json:"version"`
	RawText string   `json:"rawText"`
	Chunks  []string `json:"chunks"`
}
