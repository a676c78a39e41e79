package domain

// Allocation is the result of the Budget Allocator (C4): a fixed
// integer budget divided across N items by floor division. Total
// functions — never fail, no redistribution pass over the remainder.
type Allocation struct {
	Total   int
	NItems  int
	PerItem int
}

// AllocateTokens implements the token-budget variant (§4.4): per_item
// = floor(total / max(1, n)). n=0 is a legal degenerate call whose
// PerItem equals Total; callers must not iterate in that case.
func AllocateTokens(total, nItems int) Allocation {
	denom := nItems
	if denom < 1 {
		denom = 1
	}
	perItem := total / denom
	if perItem < 0 {
		perItem = 0
	}
	if nItems == 0 {
		perItem = total
	}
	return Allocation{Total: total, NItems: nItems, PerItem: perItem}
}

// CommentAllocation is the comment-budget variant (§4.4): the
// per-item share is computed the same way as AllocateTokens but also
// capped at a provider-imposed request ceiling. Both the uncapped and
// capped values are retained so handlers can parameterize the adapter
// call with the capped value while still displaying the uncapped
// figure for user-facing accounting.
type CommentAllocation struct {
	Total           int
	NItems          int
	PerItemUncapped int
	PerItemCapped   int
	RequestCeiling  int
}

// AllocateComments implements the comment-budget variant over a
// Reddit-style request ceiling.
func AllocateComments(total, nItems, requestCeiling int) CommentAllocation {
	base := AllocateTokens(total, nItems)
	capped := base.PerItem
	if requestCeiling > 0 && capped > requestCeiling {
		capped = requestCeiling
	}
	return CommentAllocation{
		Total:           total,
		NItems:          nItems,
		PerItemUncapped: base.PerItem,
		PerItemCapped:   capped,
		RequestCeiling:  requestCeiling,
	}
}
