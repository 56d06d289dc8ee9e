package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/faultline/internal/breaker"
	"github.com/vietddude/faultline/internal/fault"
	"github.com/vietddude/faultline/internal/retry"
)

var classifyStatus int

var classifyCmd = &cobra.Command{
	Use:   "classify [code-or-message]",
	Short: "Show how an error code, message or HTTP status is classified",
	Example: `  faultline classify auth/wrong-password
  faultline classify "dial tcp: connection refused"
  faultline classify --status 503 "upstream failed"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().IntVar(&classifyStatus, "status", 0, "HTTP status carried by the error")
	rootCmd.AddCommand(classifyCmd)
}

// statusError carries an HTTP status like an HTTP client error would.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) HTTPStatus() int { return e.status }

func classifyInput(input string, status int) error {
	if input == "" {
		input = fmt.Sprintf("HTTP %d", status)
	}
	if status > 0 {
		return &statusError{status: status, msg: input}
	}
	if ns, _, ok := strings.Cut(input, "/"); ok && !strings.ContainsAny(ns, " :") {
		if _, _, _, known := fault.LookupBackendCode(input); known {
			return &fault.BackendError{Code: input}
		}
	}
	return errors.New(input)
}

func runClassify(cmd *cobra.Command, args []string) error {
	var input string
	if len(args) == 1 {
		input = args[0]
	}
	if input == "" && classifyStatus == 0 {
		return errors.New("provide a code, a message or --status")
	}

	fe := fault.Normalize(classifyInput(input, classifyStatus), nil)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", fe.Kind())
	_, _ = fmt.Fprintf(w, "Severity:\t%s\n", fe.Severity())
	_, _ = fmt.Fprintf(w, "Status:\t%d\n", fe.Status())
	if fe.Code() != "" {
		_, _ = fmt.Fprintf(w, "Code:\t%s\n", fe.Code())
	}
	_, _ = fmt.Fprintf(w, "User message:\t%s\n", fe.UserMessage())
	_, _ = fmt.Fprintf(w, "Retryable:\t%t\n", retry.DefaultRetryCondition(fe))
	_, _ = fmt.Fprintf(w, "Counts against circuit:\t%t\n", breaker.DefaultIsFailure(fe))
	return w.Flush()
}
