package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/core"
	"github.com/Brettillian123/email-scraper-verifier-sub000/internal/domain/model"
)

// ErrEscalationExhausted means every candidate for the person has already
// entered the test-send lifecycle; the chain ends.
var ErrEscalationExhausted = errors.New("no escalation candidates remain")

// EscalatorOptions groups dependencies for Escalator.
type EscalatorOptions struct {
	Results  core.VerificationRepository // Required: verification result store
	Sender   core.TestSender             // Required: outbound test-send dispatch
	People   core.PersonRepository       // Optional: person lookup for bounce-driven escalation
	Evidence *EvidenceService            // Optional: post-bounce evidence maintenance
	Logger   *slog.Logger                // Optional: structured logger

	// BounceDomain is the domain of minted VERP return-path addresses.
	BounceDomain string // Required
}

// Escalator walks a person's candidate addresses in pattern-priority order,
// sending at most one test message at a time and reacting to bounces by
// escalating to the next candidate.
type Escalator struct {
	results      core.VerificationRepository
	sender       core.TestSender
	people       core.PersonRepository
	evidence     *EvidenceService
	logger       *slog.Logger
	bounceDomain string
}

// NewEscalator constructs a new Escalator.
func NewEscalator(opts EscalatorOptions) (*Escalator, error) {
	if opts.Results == nil {
		return nil, errors.New("VerificationRepository is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("TestSender is required")
	}
	if opts.BounceDomain == "" {
		return nil, errors.New("BounceDomain is required")
	}

	esc := &Escalator{
		results:      opts.Results,
		sender:       opts.Sender,
		people:       opts.People,
		evidence:     opts.Evidence,
		bounceDomain: opts.BounceDomain,
	}
	if opts.Logger != nil {
		esc.logger = opts.Logger.With("component", "escalator")
	}
	return esc, nil
}

// ChooseNext picks the person's best untried candidate at the domain, or nil
// when none remain. Only rows that never entered the test-send lifecycle and
// whose verify status is still ambiguous are eligible. Ordering is the fixed
// pattern priority, ties broken alphabetically by local-part.
func (e *Escalator) ChooseNext(ctx context.Context, person *model.Person, domain string) (*model.VerificationResult, error) {
	if person == nil {
		return nil, errors.New("person is required")
	}
	domain = model.NormalizeDomain(domain)
	rows, err := e.results.ListByPersonDomain(ctx, person.ID, domain)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	// One outstanding token per person at a time: an active send means the
	// chain is already in flight and no new candidate is chosen.
	for _, row := range rows {
		if row.HasOutstandingToken() {
			return nil, nil
		}
	}

	ranked := rankEligible(person, rows)
	if len(ranked) == 0 {
		return nil, nil
	}
	return ranked[0], nil
}

// rankEligible filters rows to untried ambiguous candidates and orders them
// by pattern priority then local-part.
func rankEligible(person *model.Person, rows []*model.VerificationResult) []*model.VerificationResult {
	byEmailID := make(map[int64]*model.VerificationResult, len(rows))
	candidates := make([]model.EmailCandidate, 0, len(rows))

	for _, row := range rows {
		if row.TestSendStatus != "" && row.TestSendStatus != model.TestSendStatusNotRequested {
			continue
		}
		if !row.VerifyStatus.Ambiguous() {
			continue
		}
		local := row.LocalPart()
		pattern, _ := model.InferPattern(local, person.FirstName, person.LastName)
		byEmailID[row.EmailID] = row
		candidates = append(candidates, model.EmailCandidate{
			EmailID:   row.EmailID,
			Email:     row.Email,
			LocalPart: local,
			Pattern:   pattern,
		})
	}

	ordered := model.RankCandidates(candidates)
	ranked := make([]*model.VerificationResult, 0, len(ordered))
	for _, c := range ordered {
		ranked = append(ranked, byEmailID[c.EmailID])
	}
	return ranked
}

// Escalate mints a token for the row, records it as pending, and dispatches
// the test message. The pending record is written before the send so a crash
// between the two leaves a stale pending row the maintenance sweep releases,
// never a sent message with no token on file.
func (e *Escalator) Escalate(ctx context.Context, row *model.VerificationResult) error {
	if row == nil {
		return errors.New("candidate row is required")
	}

	token := model.MintBounceToken(row.EmailID)
	ok, err := e.results.MarkTestSend(ctx, core.MarkTestSendParams{
		EmailID: row.EmailID,
		Token:   token,
		Status:  model.TestSendStatusPending,
	})
	if err != nil {
		return fmt.Errorf("mark test send: %w", err)
	}
	if !ok {
		// Another worker already claimed this row.
		return nil
	}

	returnPath := model.BounceReturnPath(token, e.bounceDomain)
	if err := e.sender.Send(ctx, row.Email, returnPath); err != nil {
		return fmt.Errorf("dispatch test send to %s: %w", row.Email, err)
	}

	if _, err := e.results.MarkTestSendDispatched(ctx, row.EmailID); err != nil {
		return fmt.Errorf("mark test send dispatched: %w", err)
	}

	if e.logger != nil {
		e.logger.InfoContext(ctx, "test send dispatched",
			"email_id", row.EmailID, "email", row.Email, "token", token)
	}
	return nil
}

// EscalateNext runs one escalation step for a person: choose the best
// remaining candidate and send to it. Returns ErrEscalationExhausted when the
// chain has ended.
func (e *Escalator) EscalateNext(ctx context.Context, person *model.Person, domain string) error {
	row, err := e.ChooseNext(ctx, person, domain)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrEscalationExhausted
	}
	return e.Escalate(ctx, row)
}

// ApplyBounce resolves an inbound bounce notification to its verification row
// and applies the transition. Token recovery walks the payload fields in
// priority order; when no token survives, the most recent pending send for the
// bounced recipient is used. A hard bounce triggers evidence recomputation for
// the domain and escalates to the person's next candidate.
func (e *Escalator) ApplyBounce(ctx context.Context, n *model.BounceNotification) error {
	if n == nil {
		return errors.New("bounce notification is required")
	}

	row, err := e.resolveBounce(ctx, n)
	if err != nil {
		return err
	}
	if row == nil {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "bounce could not be attributed",
				"recipients", n.Recipients, "subject", n.Subject)
		}
		return nil
	}

	applied, err := e.results.ApplyBounce(ctx, core.ApplyBounceParams{
		EmailID: row.EmailID,
		Status:  n.Type.TestSendStatus(),
		Code:    n.Code,
		Reason:  n.Reason,
	})
	if err != nil {
		return fmt.Errorf("apply bounce to email %d: %w", row.EmailID, err)
	}
	if !applied {
		// Replay or out-of-order delivery; row already moved on.
		return nil
	}

	if e.logger != nil {
		e.logger.InfoContext(ctx, "bounce applied",
			"email_id", row.EmailID, "type", n.Type, "code", n.Code)
	}

	if !n.Hard() {
		return nil
	}

	if e.evidence != nil {
		if _, err := e.evidence.ApplyUpgrades(ctx, row.Domain); err != nil && e.logger != nil {
			e.logger.WarnContext(ctx, "post-bounce evidence maintenance failed",
				"domain", row.Domain, "err", err)
		}
	}

	if row.PersonID == nil || e.people == nil {
		return nil
	}
	person, err := e.people.GetByID(ctx, *row.PersonID)
	if err != nil {
		return fmt.Errorf("load person %d: %w", *row.PersonID, err)
	}
	err = e.EscalateNext(ctx, person, row.Domain)
	if errors.Is(err, ErrEscalationExhausted) {
		if e.logger != nil {
			e.logger.InfoContext(ctx, "escalation chain exhausted",
				"person_id", *row.PersonID, "domain", row.Domain)
		}
		return nil
	}
	return err
}

func (e *Escalator) resolveBounce(ctx context.Context, n *model.BounceNotification) (*model.VerificationResult, error) {
	if _, emailID, ok := n.Token(); ok {
		row, err := e.results.GetByEmailID(ctx, emailID)
		if errors.Is(err, model.ErrResultNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolve bounce token: %w", err)
		}
		return row, nil
	}

	for _, recipient := range n.Recipients {
		row, err := e.results.FindLatestPendingTestSend(ctx, recipient)
		if errors.Is(err, model.ErrResultNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve bounce recipient %s: %w", recipient, err)
		}
		if row != nil {
			return row, nil
		}
	}
	return nil, nil
}
