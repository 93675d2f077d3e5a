package factory

import (
	"context"

	"github.com/bazaar-mp/project/internal/actionerr"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/hashing"
)

func (r *Registry) listingAdd(ctx context.Context, walletName string, p Params) (contracts.Action, error) {
	const t = contracts.ActionListingAdd
	params, err := paramsAs[ListingAddParams](t, p)
	if err != nil {
		return nil, err
	}
	tpl := params.Template

	c := actionerr.NewCollector(t)
	c.Require("template.sellerAddress", tpl.SellerAddress)
	c.Require("template.title", tpl.Title)
	c.Require("template.shortDescription", tpl.ShortDescription)
	c.Require("template.longDescription", tpl.LongDescription)
	c.RequireLen("template.category", len(tpl.Category))
	c.Require("template.payment.type", tpl.Payment.Type)
	c.RequireLen("template.payment.options", len(tpl.Payment.Options))
	if err := c.Err(); err != nil {
		return nil, err
	}

	images, err := resolveImages(t, "template.images", tpl.Images)
	if err != nil {
		return nil, err
	}
	tpl.Images = images

	templateHash, err := hashing.Hash(tpl, hashing.ListingTemplate)
	if err != nil {
		return nil, actionerr.InvalidParam(t, "template", "%v", err)
	}
	if tpl.Hash != "" && tpl.Hash != templateHash {
		return nil, actionerr.HashMismatch(t, "template.hash", tpl.Hash, templateHash)
	}

	signature, err := r.sign(ctx, t, walletName, tpl.SellerAddress, ListingTicket(tpl.SellerAddress, templateHash))
	if err != nil {
		return nil, err
	}

	refs := make([]contracts.ContentReference, len(images))
	for i, img := range images {
		refs[i] = contracts.ContentReference{Hash: img.Hash, Featured: img.Featured}
		if params.WithData {
			refs[i].Data = img.Data
		}
	}
	if len(refs) == 0 {
		refs = nil
	}

	a := &contracts.ListingAdd{
		Base: contracts.Base{Type: t, Generated: r.generated()},
		Item: contracts.ListingItem{
			Seller: contracts.Seller{Address: tpl.SellerAddress, Signature: signature},
			Information: contracts.ItemInformation{
				Title:                tpl.Title,
				ShortDescription:     tpl.ShortDescription,
				LongDescription:      tpl.LongDescription,
				Category:             tpl.Category,
				Location:             tpl.Location,
				ShippingDestinations: tpl.ShippingDestinations,
				Images:               refs,
			},
			Payment: tpl.Payment,
		},
	}
	if err := stamp(a); err != nil {
		return nil, err
	}
	if a.Hash != templateHash {
		return nil, actionerr.HashMismatch(t, "hash", templateHash, a.Hash)
	}
	return a, nil
}

func (r *Registry) listingImageAdd(ctx context.Context, walletName string, p Params) (contracts.Action, error) {
	const t = contracts.ActionListingImageAdd
	params, err := paramsAs[ListingImageAddParams](t, p)
	if err != nil {
		return nil, err
	}
	target, signer, signature, image, err := r.imageParts(ctx, t, walletName, params.Target, params.Signer, params.Image)
	if err != nil {
		return nil, err
	}
	a := &contracts.ListingImageAdd{
		Base:      contracts.Base{Type: t, Generated: r.generated()},
		Target:    target,
		Signer:    signer,
		Signature: signature,
		Image:     image,
	}
	if err := stamp(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Registry) marketImageAdd(ctx context.Context, walletName string, p Params) (contracts.Action, error) {
	const t = contracts.ActionMarketImageAdd
	params, err := paramsAs[MarketImageAddParams](t, p)
	if err != nil {
		return nil, err
	}
	target, signer, signature, image, err := r.imageParts(ctx, t, walletName, params.Target, params.Signer, params.Image)
	if err != nil {
		return nil, err
	}
	a := &contracts.MarketImageAdd{
		Base:      contracts.Base{Type: t, Generated: r.generated()},
		Target:    target,
		Signer:    signer,
		Signature: signature,
		Image:     image,
	}
	if err := stamp(a); err != nil {
		return nil, err
	}
	return a, nil
}

// imageParts checks and signs the fields shared by both image actions.
func (r *Registry) imageParts(ctx context.Context, t contracts.ActionType, walletName, target, signer string, image contracts.ContentReference) (string, string, string, contracts.ContentReference, error) {
	c := actionerr.NewCollector(t)
	c.Require("target", target)
	c.Require("signer", signer)
	c.RequireLen("image.data", len(image.Data))
	if err := c.Err(); err != nil {
		return "", "", "", contracts.ContentReference{}, err
	}
	resolved, err := resolveImages(t, "image", []contracts.ContentReference{image})
	if err != nil {
		return "", "", "", contracts.ContentReference{}, err
	}
	image = resolved[0]
	signature, err := r.sign(ctx, t, walletName, signer, ImageTicket(signer, image.Hash, target))
	if err != nil {
		return "", "", "", contracts.ContentReference{}, err
	}
	return target, signer, signature, image, nil
}

// resolveImages fills in missing image hashes from the image data and
// rejects references whose declared hash disagrees with their data.
func resolveImages(t contracts.ActionType, field string, images []contracts.ContentReference) ([]contracts.ContentReference, error) {
	if len(images) == 0 {
		return nil, nil
	}
	out := make([]contracts.ContentReference, len(images))
	for i, img := range images {
		out[i] = img
		if len(img.Data) == 0 {
			if img.Hash == "" {
				return nil, actionerr.MissingParam(t, field+".hash")
			}
			continue
		}
		h, err := hashing.HashImageData(img.Data)
		if err != nil {
			return nil, actionerr.InvalidParam(t, field+".data", "%v", err)
		}
		if img.Hash != "" && img.Hash != h {
			return nil, actionerr.HashMismatch(t, field+".hash", img.Hash, h)
		}
		out[i].Hash = h
	}
	return out, nil
}
