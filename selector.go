package x402

import (
	"context"
	"math/big"
	"sort"
	"strings"
)

// PaymentSelector chooses a signer for a 402 challenge and signs the payment.
type PaymentSelector interface {
	// SelectAndSign picks one of the offered requirements and a signer able
	// to pay it, and returns the signed payload together with the chosen requirement.
	SelectAndSign(ctx context.Context, requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, *PaymentRequirement, error)
}

// DefaultPaymentSelector ranks every (requirement, signer) pair the signer can
// pay within its per-call limit, by:
// 1. Signer priority (lower number = higher priority)
// 2. Asset priority within the signer
// 3. The server's order of requirements, then configuration order
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

type signerCandidate struct {
	signer         Signer
	requirement    *PaymentRequirement
	signerPriority int
	assetPriority  int
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(ctx context.Context, requirements []PaymentRequirement, signers []Signer) (*PaymentPayload, *PaymentRequirement, error) {
	if len(signers) == 0 {
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signers configured", ErrNoValidSigner)
	}
	if len(requirements) == 0 {
		return nil, nil, NewPaymentError(ErrCodeInvalidRequirements, "no payment requirements offered", ErrInvalidRequirements)
	}

	var candidates []signerCandidate
	for i := range requirements {
		req := &requirements[i]
		amount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
		if !ok || amount.Sign() < 0 {
			continue
		}
		for _, signer := range signers {
			if !signer.CanSign(req) {
				continue
			}
			if limit := signer.GetMaxAmount(); limit != nil && amount.Cmp(limit) > 0 {
				continue
			}
			assetPriority := 0
			for _, asset := range signer.GetAssets() {
				if strings.EqualFold(asset.CoinType, req.Asset) {
					assetPriority = asset.Priority
					break
				}
			}
			candidates = append(candidates, signerCandidate{
				signer:         signer,
				requirement:    req,
				signerPriority: signer.GetPriority(),
				assetPriority:  assetPriority,
			})
		}
	}

	if len(candidates) == 0 {
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signer can satisfy requirements", ErrNoValidSigner)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].signerPriority != candidates[j].signerPriority {
			return candidates[i].signerPriority < candidates[j].signerPriority
		}
		return candidates[i].assetPriority < candidates[j].assetPriority
	})

	chosen := candidates[0]
	payment, err := chosen.signer.Sign(ctx, chosen.requirement)
	if err != nil {
		return nil, nil, NewPaymentError(ErrCodeSigningFailed, "failed to sign payment", err)
	}
	return payment, chosen.requirement, nil
}
