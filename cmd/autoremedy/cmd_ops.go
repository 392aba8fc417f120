package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"autoremedy/internal/diagnosis"
	"autoremedy/pkg/models"
)

var (
	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Run one alert evaluation cycle and print the incidents it created",
		Args:  cobra.NoArgs,
		RunE:  runEvaluate,
	}

	diagnoseCmd = &cobra.Command{
		Use:   "diagnose",
		Short: "Diagnose an incident description without persisting anything",
		Args:  cobra.NoArgs,
		RunE:  runDiagnose,
	}

	executeCmd = &cobra.Command{
		Use:   "execute",
		Short: "Create a remediation for a node and execute it immediately",
		Args:  cobra.NoArgs,
		RunE:  runExecute,
	}

	checkCmd = &cobra.Command{
		Use:   "check <node-id>",
		Short: "Run the server diagnostic checks on a node",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}

	diagnoseTitle       string
	diagnoseDescription string
	diagnoseSeverity    string
	diagnoseSource      string

	executeNode     string
	executeAction   string
	executeIncident string
	executeParams   map[string]string
)

func init() {
	diagnoseCmd.Flags().StringVar(&diagnoseTitle, "title", "", "incident title")
	diagnoseCmd.Flags().StringVarP(&diagnoseDescription, "description", "d", "", "incident description")
	diagnoseCmd.Flags().StringVar(&diagnoseSeverity, "severity", "high", "incident severity")
	diagnoseCmd.Flags().StringVar(&diagnoseSource, "source", "cli", "incident source")

	executeCmd.Flags().StringVarP(&executeNode, "node", "n", "", "target node id")
	executeCmd.Flags().StringVarP(&executeAction, "action", "a", "", "action type")
	executeCmd.Flags().StringVar(&executeIncident, "incident", "", "incident id to link")
	executeCmd.Flags().StringToStringVarP(&executeParams, "param", "p", nil, "template parameter as key=value")
	_ = executeCmd.MarkFlagRequired("node")
	_ = executeCmd.MarkFlagRequired("action")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fired, evalErr := a.evaluator.EvaluateAllRules(cmd.Context())
	if fired == nil {
		fired = []*models.Incident{}
	}
	if err := printJSON(cmd.OutOrStdout(), fired); err != nil {
		return err
	}
	return evalErr
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if diagnoseTitle == "" && diagnoseDescription == "" {
		return errors.New("one of --title or --description is required")
	}
	sev, err := models.ParseSeverity(diagnoseSeverity)
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg.AutoRemedy.Diagnosis)
	if err != nil {
		return err
	}

	d, err := engine.Diagnose(cmd.Context(), diagnosis.IncidentContext{
		Incident: models.Incident{
			Title:       diagnoseTitle,
			Description: diagnoseDescription,
			Severity:    sev,
			Source:      diagnoseSource,
			Status:      models.IncidentOpen,
			CreatedAt:   time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("diagnose: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), struct {
		Engine string `json:"engine"`
		diagnosis.Diagnosis
	}{engine.Name(), d})
}

func runExecute(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rem, execErr := a.orchestrator.CreateRemediation(cmd.Context(), models.NewRemediation{
		IncidentID:   executeIncident,
		ActionType:   executeAction,
		TargetNodeID: executeNode,
		Parameters:   executeParams,
		AutoExecute:  true,
	})
	if rem != nil {
		if err := printJSON(cmd.OutOrStdout(), rem); err != nil {
			return err
		}
	}
	if execErr != nil {
		return execErr
	}
	if rem.Status != models.RemediationSuccess {
		return fmt.Errorf("remediation %s finished with status %s", rem.ID, rem.Status)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.orchestrator.RunDiagnostics(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), results)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
