package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailflow-app/mailflow/internal/inbox"
	"github.com/mailflow-app/mailflow/internal/triage"
)

type classifyOptions struct {
	file    string
	json    bool
	explain bool
}

func classifyCmd() *cobra.Command {
	var opts classifyOptions

	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Classify one message",
		Long: `Classify a message and print its category and suggested reply.

The text comes from the arguments, from an .eml file given with --file, or
from standard input when neither is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			classifier, err := loadClassifier(cfg)
			if err != nil {
				return err
			}
			return runClassify(cmd.OutOrStdout(), cmd.InOrStdin(), classifier, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "RFC 5322 message (.eml) to classify")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Include the score and the signals behind it")

	return cmd
}

// classifyOutput is the --json shape.
type classifyOutput struct {
	triage.Result
	Label   string         `json:"label"`
	Score   *int           `json:"score,omitempty"`
	Signals []signalOutput `json:"signals,omitempty"`
}

type signalOutput struct {
	Signal string `json:"signal"`
	Term   string `json:"term,omitempty"`
	Weight int    `json:"weight"`
}

func readClassifyInput(in io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("failed to open message: %w", err)
		}
		defer f.Close()
		email, err := inbox.ParseMessage(f)
		if err != nil {
			return "", err
		}
		return email.Text(), nil
	default:
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
}

func runClassify(out io.Writer, in io.Reader, classifier *triage.Classifier, args []string, opts classifyOptions) error {
	text, err := readClassifyInput(in, args, opts.file)
	if err != nil {
		return err
	}

	exp := classifier.Explain(text)

	if opts.json {
		result := classifyOutput{Result: exp.Result, Label: exp.Category.Label()}
		if opts.explain {
			score := exp.Score
			result.Score = &score
			for _, c := range exp.Contributions {
				result.Signals = append(result.Signals, signalOutput{Signal: string(c.Signal), Term: c.Term, Weight: c.Weight})
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "Categoria: %s\n", exp.Category.Label())
	fmt.Fprintf(out, "Sugestão:  %s\n", exp.SuggestedReply)
	if opts.explain {
		fmt.Fprintf(out, "\nPontuação: %d (limiar %d)\n", exp.Score, triage.ProductiveThreshold)
		for _, c := range exp.Contributions {
			term := ""
			if c.Term != "" {
				term = fmt.Sprintf(" %q", c.Term)
			}
			fmt.Fprintf(out, "  %+d  %s%s\n", c.Weight, c.Signal, term)
		}
	}
	return nil
}
