package nodes

// Graph node names.
const (
	NodeOrchestrator = "Orchestrator"
	NodeSummarizer   = "Summarizer"
	NodePrescription = "PrescriptionSuggester"
	NodeGeneralChat  = "GeneralChat"
)
