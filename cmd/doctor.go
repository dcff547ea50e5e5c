package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dominds/minddrive/internal/config"
	"github.com/dominds/minddrive/internal/minds"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the workspace configuration and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

func runDoctor() error {
	failures := 0
	check := func(label string, err error) {
		if err != nil {
			failures++
			fmt.Printf("✗ %s: %v\n", label, err)
			return
		}
		fmt.Printf("✓ %s\n", label)
	}

	cfg, err := config.Load(workspace)
	check("runtime config", err)
	if err != nil {
		return fmt.Errorf("%d problem(s) found", failures)
	}

	if _, err := os.Stat(cfg.MindsDir()); err != nil {
		check(".minds directory", err)
	} else {
		check(".minds directory", nil)
	}

	loader := minds.NewLoader(cfg.Workspace)
	defer loader.Close()

	team, err := loader.Team()
	check("team.yaml", err)
	llm, err := loader.LLM()
	check("llm.yaml", err)

	if team != nil && llm != nil {
		for id, m := range team.Members {
			provider := m.Provider
			model := m.Model
			if provider == "" {
				provider = team.MemberDefaults.Provider
			}
			if model == "" {
				model = team.MemberDefaults.Model
			}
			label := fmt.Sprintf("member %s (%s/%s)", id, provider, model)
			switch {
			case provider == "" || model == "":
				check(label, fmt.Errorf("no provider/model and no member_defaults"))
			default:
				spec, ok := llm.Providers[provider]
				if !ok {
					check(label, fmt.Errorf("provider %q not in llm.yaml", provider))
					continue
				}
				if _, ok := spec.Models[model]; !ok {
					check(label, fmt.Errorf("model %q not declared under provider %q", model, provider))
					continue
				}
				if spec.APIKeyEnv != "" && os.Getenv(spec.APIKeyEnv) == "" {
					check(label, fmt.Errorf("env %s is not set", spec.APIKeyEnv))
					continue
				}
				check(label, nil)
			}
		}
	}

	st, err := openStore(cfg)
	check(fmt.Sprintf("store (%s at %s)", cfg.Store.Backend, filepath.Clean(cfg.Store.Path)), err)
	if err == nil {
		problems, perr := st.ListProblems()
		check("problem records readable", perr)
		for _, p := range problems {
			failures++
			fmt.Printf("✗ recorded problem [%s] dialog=%s provider=%s: %s\n", p.Kind, p.DialogKey, p.Provider, p.Detail)
		}
		st.Close()
	}

	if failures > 0 {
		return fmt.Errorf("%d problem(s) found", failures)
	}
	fmt.Println("all checks passed")
	return nil
}
