package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

type report struct {
	Valid       bool                                  `json:"valid"`
	Receipts    []*validation.ReceiptValidationResult `json:"receipts"`
	ChainError  string                                `json:"chain_error,omitempty"`
	Attestation *validation.HeadValidationResult      `json:"attestation,omitempty"`
}

func main() {
	var (
		eventsPath      = flag.String("events", "", "Path to events response JSON file (required)")
		publicKeyPath   = flag.String("public-key", "", "Path to receipt public key PEM file (required)")
		attestationPath = flag.String("attestation", "", "Path to attest response JSON file (optional)")
		pcrsPath        = flag.String("pcrs", "pcrs.json", "Path to known PCR sets, used with --attestation")
		outputFormat    = flag.String("format", "text", "Output format: text or json")
		help            = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help || *eventsPath == "" || *publicKeyPath == "" {
		showUsage()
		if *eventsPath == "" || *publicKeyPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	var events auctionapi.EventsResponse
	if err := readJSON(*eventsPath, &events); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading events: %v\n", err)
		os.Exit(2)
	}

	publicKey, err := os.ReadFile(*publicKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
		os.Exit(2)
	}

	out := report{}
	out.Receipts, err = validation.VerifyEnvelopes(events.Events, string(publicKey))
	if err != nil && out.Receipts == nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}
	if err != nil {
		out.ChainError = err.Error()
	}

	if *attestationPath != "" {
		out.Attestation, err = validateAttestation(*attestationPath, *pcrsPath, string(publicKey))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Attestation error: %v\n", err)
			os.Exit(2)
		}
	}

	out.Valid = out.ChainError == ""
	for _, r := range out.Receipts {
		out.Valid = out.Valid && r.IsValid()
	}
	if out.Attestation != nil {
		out.Valid = out.Valid && out.Attestation.IsValid()
	}

	if *outputFormat == "json" {
		if err := outputJSON(out); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(out)
	}

	if !out.Valid {
		os.Exit(1)
	}
	os.Exit(0)
}

func validateAttestation(path, pcrsPath, publicKey string) (*validation.HeadValidationResult, error) {
	var resp auctionapi.AttestResponse
	if err := readJSON(path, &resp); err != nil {
		return nil, err
	}
	if resp.Attestation == "" {
		return nil, fmt.Errorf("missing attestation_cose_base64 field in attest response")
	}
	document, err := base64.StdEncoding.DecodeString(resp.Attestation)
	if err != nil {
		return nil, fmt.Errorf("decode attestation: %w", err)
	}
	known, err := validation.LoadPCRsFromFile(pcrsPath)
	if err != nil {
		return nil, err
	}
	return validation.ValidateHeadAttestation(document, known, resp.HeadHash, publicKey)
}

func showUsage() {
	logger.Info("Auction Receipt Validator")
	logger.Info("")
	logger.Info("Verifies signed event receipts and the journal hash chain, and optionally")
	logger.Info("the enclave attestation binding the receipt key to the journal head.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  receipt-validator --events <path> --public-key <pem> [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --events <path>                   Events response JSON (GET /api/v1/events)")
	logger.Info("  --public-key <path>               Receipt public key PEM file")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --attestation <path>              Attest response JSON")
	logger.Info("  --pcrs <path>                     Known PCR sets (default: pcrs.json)")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func outputText(out report) {
	logger.Info("Auction Receipt Validator")
	logger.Info("=========================")
	logger.Info("")

	for _, r := range out.Receipts {
		status := "✓"
		if !r.IsValid() {
			status = "✗"
		}
		logger.Info(fmt.Sprintf("%s event %d (%s, auction %d)", status, r.Event.Seq, r.Event.Type, r.Event.AuctionID))
		if !r.IsValid() {
			for _, d := range r.ValidationDetails {
				logger.Info("    " + d)
			}
		}
	}

	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  Receipts checked:  %d", len(out.Receipts)))
	if out.ChainError != "" {
		logger.Info(fmt.Sprintf("  Chain Valid:       false (%s)", out.ChainError))
	} else {
		logger.Info("  Chain Valid:       true")
	}
	if a := out.Attestation; a != nil {
		logger.Info(fmt.Sprintf("  PCRs Valid:        %v", a.PCRsValid))
		logger.Info(fmt.Sprintf("  Certificate Valid: %v", a.CertificateValid))
		logger.Info(fmt.Sprintf("  Signature Valid:   %v", a.SignatureValid))
		logger.Info(fmt.Sprintf("  Head Match:        %v", a.HeadMatch))
		logger.Info(fmt.Sprintf("  Receipt Key Match: %v", a.ReceiptKeyMatch))
	}

	logger.Info("")
	logger.Info("=========================")
	if out.Valid {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(out report) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
