package factory

import (
	"context"
	"errors"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/platform/wallet"
)

func (r *Registry) marketAdd(_ context.Context, _ string, p Params) (contracts.Action, error) {
	const t = contracts.ActionMarketAdd
	params, err := paramsAs[MarketAddParams](t, p)
	if err != nil {
		return nil, err
	}

	c := actionerr.NewCollector(t)
	c.Require("name", params.Name)
	c.Require("marketType", string(params.MarketType))
	c.Require("receiveKey", params.ReceiveKey)
	if params.MarketType != "" && params.MarketType != contracts.MarketTypeMarketplace {
		c.Require("publishKey", params.PublishKey)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	publishKey := params.PublishKey
	if params.MarketType == contracts.MarketTypeMarketplace && publishKey == "" {
		publishKey = params.ReceiveKey
	}
	addrs, err := wallet.DeriveMarketAddresses(params.MarketType, params.ReceiveKey, publishKey)
	if err != nil {
		if errors.Is(err, wallet.ErrIdenticalMarketKeys) {
			return nil, actionerr.InvalidParam(t, "publishKey", "%w", err)
		}
		return nil, actionerr.InvalidParam(t, "keys", "%w", err)
	}

	var image *contracts.ContentReference
	if params.Image != nil {
		resolved, err := resolveImages(t, "image", []contracts.ContentReference{*params.Image})
		if err != nil {
			return nil, err
		}
		ref := contracts.ContentReference{Hash: resolved[0].Hash, Featured: resolved[0].Featured}
		if params.WithData {
			ref.Data = resolved[0].Data
		}
		image = &ref
	}

	a := &contracts.MarketAdd{
		Base:        contracts.Base{Type: t, Generated: r.generated()},
		Name:           params.Name,
		Description:    params.Description,
		MarketType:     params.MarketType,
		Region:         params.Region,
		ReceiveKey:     params.ReceiveKey,
		PublishKey:     publishKey,
		PublishAddress: addrs.PublishAddress,
		Image:          image,
	}
	if err := stamp(a); err != nil {
		return nil, err
	}
	if params.Hash != "" && params.Hash != a.Hash {
		return nil, actionerr.HashMismatch(t, "hash", params.Hash, a.Hash)
	}
	return a, nil
}
