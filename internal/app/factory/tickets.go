package factory

import (
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/platform/wallet"
)

// Tickets are the minimal objects a signature covers. Sender and receiver
// must be able to rebuild them from the action alone.

func ListingTicket(seller, hash string) wallet.Ticket {
	return wallet.Ticket{"address": seller, "hash": hash}
}

func ImageTicket(signer, imageHash, target string) wallet.Ticket {
	return wallet.Ticket{"address": signer, "hash": imageHash, "target": target}
}

func VoteTicket(v *contracts.Vote) wallet.Ticket {
	return wallet.Ticket{
		"proposalHash":       v.ProposalHash,
		"proposalOptionHash": v.ProposalOptionHash,
		"address":            v.Voter,
	}
}

func CommentTicket(c *contracts.CommentAdd) wallet.Ticket {
	return wallet.Ticket{
		"sender":            c.Sender,
		"receiver":          c.Receiver,
		"type":              string(c.CommentType),
		"target":            c.Target,
		"message":           c.Message,
		"parentCommentHash": c.ParentCommentHash,
	}
}
