package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/obsidianrag/internal/cli"
	"github.com/sgx-labs/obsidianrag/internal/config"
)

// doctorResult is a single health check outcome, grounded on the teacher's
// DoctorResult/DoctorReport shape in cmd/same/doctor_cmd.go.
type doctorResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message,omitempty"`
}

type doctorReport struct {
	Checks  []doctorResult `json:"checks"`
	Summary struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
		Warned int `json:"warned"`
		Failed int `json:"failed"`
	} `json:"summary"`
}

func doctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check vault, store, and embedding backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runDoctor(jsonOut bool) error {
	report := doctorReport{}
	add := func(name, status, message string) {
		report.Checks = append(report.Checks, doctorResult{Name: name, Status: status, Message: message})
		report.Summary.Total++
		switch status {
		case "pass":
			report.Summary.Passed++
		case "warn":
			report.Summary.Warned++
		case "fail":
			report.Summary.Failed++
		}
	}

	vaultPath := resolveVaultPath("")
	cfg, err := config.Load(vaultPath)
	if err != nil {
		add("vault", "fail", err.Error())
		return printDoctorReport(report, jsonOut)
	}
	add("vault", "pass", cfg.VaultPath)

	res, err := openResources(vaultPath)
	if err != nil {
		add("vector store", "fail", err.Error())
		return printDoctorReport(report, jsonOut)
	}
	defer res.Close()
	add("vector store", "pass", cfg.DBPath())

	if res.embedder == nil {
		add("embedding backend", "warn", "unavailable — serving keyword-only search")
	} else {
		if _, err := res.embedder.GetQueryEmbedding("doctor check"); err != nil {
			add("embedding backend", "warn", err.Error())
		} else {
			add("embedding backend", "pass", fmt.Sprintf("%s/%s (%d dims)", res.embedder.Name(), res.embedder.Model(), res.embedder.Dimensions()))
		}
	}

	if err := res.db.IntegrityCheck(); err != nil {
		add("database integrity", "fail", err.Error())
	} else {
		add("database integrity", "pass", "")
	}

	count, err := res.db.CountChunks()
	if err != nil {
		add("index contents", "fail", err.Error())
	} else if count == 0 {
		add("index contents", "warn", "no chunks indexed yet — run 'obsidianrag index'")
	} else {
		add("index contents", "pass", cli.FormatNumber(count)+" chunks indexed")
	}

	if res.db.FTSAvailable() {
		add("keyword search (FTS5)", "pass", "")
	} else {
		add("keyword search (FTS5)", "warn", "FTS5 unavailable — falling back to LIKE search")
	}

	return printDoctorReport(report, jsonOut)
}

func printDoctorReport(report doctorReport, jsonOut bool) error {
	if jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		cli.Header("Health check")
		fmt.Println()
		for _, c := range report.Checks {
			symbol, color := "✓", cli.Green
			switch c.Status {
			case "warn":
				symbol, color = "!", cli.Yellow
			case "fail":
				symbol, color = "✗", cli.Red
			}
			fmt.Printf("  %s%s%s %-22s %s\n", color, symbol, cli.Reset, c.Name, c.Message)
		}
		fmt.Println()
	}
	if report.Summary.Failed > 0 {
		return userError("One or more health checks failed", "see the report above")
	}
	return nil
}
