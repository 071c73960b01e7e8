// Package privacy provides policies: the ordered rules that decide which
// data categories a privacy request returns or erases, and how erased values
// are masked.
//
// # Policies
//
// A policy is a list of rules. Access rules name the data categories that
// are released to the requester; erasure rules name the categories to erase
// and the masking strategy applied to them:
//
//	p := &privacy.Policy{
//	    Key: "default",
//	    Rules: []*privacy.Rule{
//	        {Key: "access", Action: privacy.ActionAccess, Targets: []string{"user"}},
//	        {
//	            Key:     "erase_email",
//	            Action:  privacy.ActionErasure,
//	            Targets: []string{"user.contact.email"},
//	            Masking: &masking.Config{Strategy: masking.Hash},
//	        },
//	    },
//	}
//	if err := p.Bind(masking.Default()); err != nil {
//	    return err
//	}
//
// Category targets are prefixes: "user.contact" targets every category
// starting with it. When two erasure rules target the same field, the later
// one wins.
//
// # Field Rules
//
// Access results are filtered field by field through a chain of rules
// returning Allow, Deny or Skip:
//
//   - Allow: the field is released and evaluation stops
//   - Deny: the field is dropped and evaluation stops
//   - Skip: the next rule decides
//
// The policy's access rules close the chain, and a field no rule allows is
// dropped. Extra rules are evaluated first:
//
//	p.Fields = privacy.FieldPolicy{
//	    privacy.DenyCategories("user.financial"),
//	}
package privacy
