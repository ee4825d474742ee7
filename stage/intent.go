package stage

import (
	"context"
	"strings"

	"github.com/micromdm/nanoheal/workflow"
)

// intentRules are evaluated in order; the first rule with a matching
// phrase wins.
var intentRules = []struct {
	phrases []string
	t       workflow.Type
}{
	{[]string{"offline", "not responding", "cannot print"}, workflow.PrinterOffline},
	{[]string{"ink", "cartridge"}, workflow.InkError},
}

// IntentClassifier picks a workflow type from free-text customer interactions.
type IntentClassifier struct{}

// NewIntentClassifier creates a new rule-based intent classifier.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{}
}

// Name returns the name of the stage.
func (c *IntentClassifier) Name() string {
	return "intent_detection"
}

// Classify returns the workflow type text most likely refers to.
// Text matching no rule defaults to printer_offline.
func (c *IntentClassifier) Classify(text string) workflow.Type {
	text = strings.ToLower(text)
	for _, rule := range intentRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(text, phrase) {
				return rule.t
			}
		}
	}
	return workflow.PrinterOffline
}

// Run classifies the interaction text and records it as the intent diagnosis.
func (c *IntentClassifier) Run(_ context.Context, wc *workflow.Context, st *workflow.State) error {
	text := strings.ToLower(wc.Interaction.Text)
	st.Log(workflow.LevelInfo, "Running intent detection", workflow.Fields{"text": workflow.String(text)})

	inferred := c.Classify(text)

	st.SetDiagnosis(workflow.KeyIntent, workflow.String(string(inferred)))
	st.Log(workflow.LevelInfo, "Intent detected", workflow.Fields{"workflow_type": workflow.String(string(inferred))})
	return nil
}
