package factory

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/hashing"
)

// MaxCommentLength is counted in characters, not bytes.
const MaxCommentLength = 1000

// OptionHash identifies one option of a proposal.
func OptionHash(proposalHash string, o contracts.ProposalOption) (string, error) {
	return hashing.Hash(map[string]any{
		"proposalHash": proposalHash,
		"optionId":     o.OptionID,
		"description":  o.Description,
	}, hashing.ProposalOption)
}

func (r *Registry) proposalAdd(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionProposalAdd
	params, err := paramsAs[ProposalAddParams](t, p)
	if err != nil {
		return nil, err
	}
	c := actionerr.NewCollector(t)
	c.Require("submitter", params.Submitter)
	c.Require("title", params.Title)
	c.Require("category", string(params.Category))
	if params.Category != "" && !params.Category.Valid() {
		c.Invalid("category", "unknown category %q", params.Category)
	}
	if params.Category == contracts.ProposalItemVote || params.Category == contracts.ProposalMarketVote {
		c.Require("target", params.Target)
	}
	if len(params.Options) < 2 {
		c.Invalid("options", "need at least two options, got %d", len(params.Options))
	}
	for i, o := range params.Options {
		if o == "" {
			c.Add(actionerr.MissingParam(t, fmt.Sprintf("options[%d]", i)))
		}
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	options := make([]contracts.ProposalOption, len(params.Options))
	for i, d := range params.Options {
		options[i] = contracts.ProposalOption{OptionID: i, Description: d}
	}
	a := &contracts.ProposalAdd{
		Base:        contracts.Base{Type: t, Generated: r.generated()},
		Submitter:   params.Submitter,
		Title:       params.Title,
		Description: params.Description,
		Category:    params.Category,
		Target:      params.Target,
		Options:     options,
	}
	if err := stamp(a); err != nil {
		return nil, err
	}
	for i := range a.Options {
		h, err := OptionHash(a.Hash, a.Options[i])
		if err != nil {
			return nil, actionerr.InvalidParam(t, "options", "%v", err)
		}
		a.Options[i].Hash = h
	}
	return a, nil
}

func (r *Registry) vote(ctx context.Context, walletName string, p Params) (contracts.Action, error) {
	const t = contracts.ActionVote
	params, err := paramsAs[VoteParams](t, p)
	if err != nil {
		return nil, err
	}
	c := actionerr.NewCollector(t)
	c.Require("proposalHash", params.ProposalHash)
	c.Require("proposalOptionHash", params.ProposalOptionHash)
	c.Require("voter", params.Voter)
	if err := c.Err(); err != nil {
		return nil, err
	}
	a := &contracts.Vote{
		Base:               contracts.Base{Type: t, Generated: r.generated()},
		ProposalHash:       params.ProposalHash,
		ProposalOptionHash: params.ProposalOptionHash,
		Voter:              params.Voter,
	}
	sig, err := r.sign(ctx, t, walletName, a.Voter, VoteTicket(a))
	if err != nil {
		return nil, err
	}
	a.Signature = sig
	if err := stamp(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Registry) commentAdd(ctx context.Context, walletName string, p Params) (contracts.Action, error) {
	const t = contracts.ActionCommentAdd
	params, err := paramsAs[CommentAddParams](t, p)
	if err != nil {
		return nil, err
	}
	c := actionerr.NewCollector(t)
	c.Require("sender", params.Sender)
	c.Require("receiver", params.Receiver)
	c.Require("commentType", string(params.Type))
	c.Require("target", params.Target)
	c.Require("message", params.Message)
	if params.Type != "" && !params.Type.Valid() {
		c.Invalid("commentType", "unknown comment type %q", params.Type)
	}
	if n := utf8.RuneCountInString(params.Message); n > MaxCommentLength {
		c.Invalid("message", "%d characters exceeds %d", n, MaxCommentLength)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	a := &contracts.CommentAdd{
		Base:              contracts.Base{Type: t, Generated: r.generated()},
		Sender:            params.Sender,
		Receiver:          params.Receiver,
		CommentType:       params.Type,
		Target:            params.Target,
		ParentCommentHash: params.ParentCommentHash,
		Message:           params.Message,
	}
	sig, err := r.sign(ctx, t, walletName, a.Sender, CommentTicket(a))
	if err != nil {
		return nil, err
	}
	a.Signature = sig
	if err := stamp(a); err != nil {
		return nil, err
	}
	return a, nil
}
