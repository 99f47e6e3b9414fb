package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chanwallet/internal/channel"
	"github.com/roach88/chanwallet/internal/testutil"
)

// Scenario defines a conformance test scenario: one channel between
// fixture actors, a sequence of wallet calls and message deliveries, and
// assertions on the resulting trace and databases.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Participants are fixture actor names in channel order.
	Participants []string `yaml:"participants"`

	// Funding is the channel's funding strategy. It is also every
	// wallet's default for channels discovered without an objective.
	Funding channel.FundingStrategy `yaml:"funding"`

	// Amounts is the initial allocation, one per participant.
	Amounts []int64 `yaml:"amounts"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario step.
type Step struct {
	// Actor is the wallet making the call. Required for wallet calls.
	Actor string `yaml:"actor,omitempty"`

	// Do is the step kind, one of the Op constants.
	Do string `yaml:"do"`

	// Amounts is the new allocation for update.
	Amounts []int64 `yaml:"amounts,omitempty"`

	// Amount is the holding reported by fund or added by deposit.
	Amount int64 `yaml:"amount,omitempty"`

	// Objective is the objective type approved by approve.
	Objective channel.ObjectiveType `yaml:"objective,omitempty"`

	// Expect validates the call. If nil the call must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a wallet call.
type ExpectClause struct {
	// Status is the channel status after the call.
	Status channel.Status `yaml:"status,omitempty"`

	// Turn is the channel turn number after the call.
	Turn *uint64 `yaml:"turn,omitempty"`

	// Error is a substring of the expected error, usually a reason
	// such as notMyTurn. When set the call must fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Actor restricts trace assertions to one wallet and selects the
	// database for final_state.
	Actor string `yaml:"actor,omitempty"`

	// Action is a traced engine action (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the table queried by final_state.
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Step kinds.
const (
	OpCreate  = "create"
	OpJoin    = "join"
	OpApprove = "approve"
	OpUpdate  = "update"
	OpClose   = "close"
	OpSync    = "sync"
	OpFund    = "fund"
	OpCrank   = "crank"
	OpDeliver = "deliver"
	OpDrop    = "drop"
	OpFlush   = "flush"
	OpDeposit = "deposit"
)

// walletOps are the steps that call an actor's wallet.
var walletOps = []string{OpCreate, OpJoin, OpApprove, OpUpdate, OpClose, OpSync, OpFund, OpCrank}

// networkOps are the steps that act on the message queue or the chain.
var networkOps = []string{OpDeliver, OpDrop, OpFlush, OpDeposit}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Participants) < 2 {
		return fmt.Errorf("at least two participants are required")
	}
	for i, p := range s.Participants {
		if !testutil.IsActor(p) {
			return fmt.Errorf("participants[%d]: unknown actor %q", i, p)
		}
		if slices.Index(s.Participants, p) != i {
			return fmt.Errorf("participants[%d]: duplicate actor %q", i, p)
		}
	}

	switch s.Funding {
	case channel.Unfunded, channel.Direct:
	case "":
		return fmt.Errorf("funding is required")
	default:
		return fmt.Errorf("unsupported funding strategy %q", s.Funding)
	}

	if len(s.Amounts) != len(s.Participants) {
		return fmt.Errorf("amounts must have one entry per participant")
	}
	for i, a := range s.Amounts {
		if a < 0 {
			return fmt.Errorf("amounts[%d]: must be non-negative", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, s, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, s, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Scenario, step *Step) error {
	switch {
	case slices.Contains(walletOps, step.Do):
		if step.Actor == "" {
			return fmt.Errorf("steps[%d]: actor is required for %s", index, step.Do)
		}
		if !slices.Contains(s.Participants, step.Actor) {
			return fmt.Errorf("steps[%d]: actor %q is not a participant", index, step.Actor)
		}
	case slices.Contains(networkOps, step.Do):
		if step.Actor != "" {
			return fmt.Errorf("steps[%d]: %s takes no actor", index, step.Do)
		}
		if step.Expect != nil {
			return fmt.Errorf("steps[%d]: expect only applies to wallet calls", index)
		}
	case step.Do == "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, step.Do)
	}

	switch step.Do {
	case OpUpdate:
		if len(step.Amounts) != len(s.Participants) {
			return fmt.Errorf("steps[%d]: update needs one amount per participant", index)
		}
	case OpFund:
		if step.Amount < 0 {
			return fmt.Errorf("steps[%d]: amount must be non-negative", index)
		}
	case OpDeposit:
		if step.Amount <= 0 {
			return fmt.Errorf("steps[%d]: deposit amount must be positive", index)
		}
	case OpApprove:
		if step.Objective != channel.OpenChannelType && step.Objective != channel.CloseChannelType {
			return fmt.Errorf("steps[%d]: approve needs objective OpenChannel or CloseChannel", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, s *Scenario, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Actor != "" && !slices.Contains(s.Participants, a.Actor) {
		return fmt.Errorf("assertions[%d]: actor %q is not a participant", index, a.Actor)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Actor == "" {
			return fmt.Errorf("assertions[%d]: actor is required for final_state", index)
		}
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
