package tasks

import (
	"embed"

	"rehearse/internal/llm"
)

//go:embed contracts/*.json
var contractFS embed.FS

// Output contracts, one per structured stage output.
var (
	ScenarioContract = mustLoadContract("scenario")
	PersonaContract  = mustLoadContract("persona")
	GuestContract    = mustLoadContract("guest_response")
	ScoringContract  = mustLoadContract("scoring")
	FeedbackContract = mustLoadContract("feedback")
)

func mustLoadContract(name string) *llm.Contract {
	data, err := contractFS.ReadFile("contracts/" + name + ".json")
	if err != nil {
		panic(err)
	}
	return llm.MustContract(name, data)
}
