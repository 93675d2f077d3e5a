package actionsvc

import (
	"context"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/platform/wallet"
)

// marketPreSend keeps the admin publish key local: the wire form carries its
// public key and degrades to STOREFRONT. Neither field is part of the hash.
func (s *Service) marketPreSend(ctx context.Context, a contracts.Action) error {
	m, ok := a.(*contracts.MarketAdd)
	if !ok {
		return actionerr.WrongType(contracts.ActionMarketAdd, a.Kind())
	}
	if m.MarketType != contracts.MarketTypeStorefrontAdmin {
		return nil
	}
	pub, err := s.wallet.PublicKey(ctx, m.PublishKey)
	if err != nil {
		return actionerr.InvalidParam(m.Kind(), "publishKey", "%w", err)
	}
	m.PublishKey = pub
	m.MarketType = contracts.MarketTypeStorefront
	return nil
}

// followUps returns one image message per image whose bytes were not
// embedded in the primary action.
func (s *Service) followUps(p factory.Params, a contracts.Action) []factory.Params {
	switch primary := a.(type) {
	case *contracts.ListingAdd:
		params, ok := listingParams(p)
		if !ok || params.WithData {
			return nil
		}
		refs := primary.Item.Information.Images
		var out []factory.Params
		for i, img := range params.Template.Images {
			if len(img.Data) == 0 || i >= len(refs) {
				continue
			}
			out = append(out, &factory.ListingImageAddParams{
				Target: primary.Hash,
				Signer: primary.Item.Seller.Address,
				Image:  contracts.ContentReference{Hash: refs[i].Hash, Featured: img.Featured, Data: img.Data},
			})
		}
		return out
	case *contracts.MarketAdd:
		params, ok := marketParams(p)
		if !ok || params.WithData || params.Image == nil || len(params.Image.Data) == 0 || primary.Image == nil {
			return nil
		}
		addrs, err := wallet.DeriveMarketAddresses(primary.MarketType, primary.ReceiveKey, primary.PublishKey)
		if err != nil {
			return nil
		}
		return []factory.Params{&factory.MarketImageAddParams{
			Target: primary.Hash,
			Signer: addrs.PublishAddress,
			Image:  contracts.ContentReference{Hash: primary.Image.Hash, Featured: params.Image.Featured, Data: params.Image.Data},
		}}
	default:
		return nil
	}
}

func listingParams(p factory.Params) (factory.ListingAddParams, bool) {
	switch v := p.(type) {
	case factory.ListingAddParams:
		return v, true
	case *factory.ListingAddParams:
		if v != nil {
			return *v, true
		}
	}
	return factory.ListingAddParams{}, false
}

func marketParams(p factory.Params) (factory.MarketAddParams, bool) {
	switch v := p.(type) {
	case factory.MarketAddParams:
		return v, true
	case *factory.MarketAddParams:
		if v != nil {
			return *v, true
		}
	}
	return factory.MarketAddParams{}, false
}
