package cli

import (
	"fmt"

	"resumerecon/internal/backend"
	"resumerecon/internal/common"
	"resumerecon/internal/types"

	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render [suggestions-file]",
	Short: "Render the reconciled resume to PDF through the resume backend",
	Long: `Reconcile the accepted suggestions and send the result to the resume
backend's PDF renderer. With --text the argument is read as final resume
text instead of a suggestions file. The PDF is written to the file given
with -o.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if renderConfig.OutputFile == "" {
			return fmt.Errorf("render writes a PDF and requires an output file (-o)")
		}
		return renderConfig.resolve(cmd, getConfigFromContext(cmd.Context()))
	},
	RunE: runRender,
}

var (
	renderConfig   reconcileFlags
	renderTemplate string
	renderFromText bool
)

func init() {
	renderCmd.Flags().StringVarP(&renderConfig.OutputFile, "output", "o", "", "Output PDF file path")
	renderCmd.Flags().StringVar(&renderTemplate, "template", "", "Backend template name (default from config)")
	renderCmd.Flags().BoolVar(&renderFromText, "text", false, "Treat the argument as final resume text")
	renderConfig.registerSelection(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	client, err := backend.NewClient(cfg.Backend, nil, logger)
	if err != nil {
		return err
	}

	req := types.RenderRequest{Template: renderTemplate}
	if renderFromText {
		text, err := common.NewFileProcessor(logger, renderConfig.MaxFileSize).ReadResume(args[0])
		if err != nil {
			return err
		}
		req.FinalResumeText = text
	} else {
		r, err := newReconciler(cfg, logger)
		if err != nil {
			return err
		}
		result, err := common.Reconcile(logger, renderConfig.CommandConfig, "render", args[0], renderConfig.selection(), r.Structure)
		if err != nil {
			return fmt.Errorf("failed to reconcile suggestions: %w", err)
		}
		req.Structured = &result.Value
		rendered := r.Render(result.Value)
		for _, w := range rendered.Warnings {
			logger.Warn("Render warning", "code", w.Code, "section", w.Section, "message", w.Message)
		}
		req.FinalResumeText = rendered.Value
	}

	pdf, err := client.RenderPDF(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to render resume: %w", err)
	}
	if err := common.NewOutputHandler(logger).HandleBinary(pdf, renderConfig.CommandConfig); err != nil {
		return err
	}
	logger.Info("Resume rendered successfully", "output", renderConfig.OutputFile, "bytes", len(pdf))
	return nil
}
