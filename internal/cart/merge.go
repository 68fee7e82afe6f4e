package cart

import "cart-sync/internal/models"

// Normalize enforces the snapshot invariants on data from an untrusted
// source: one line per identity in each list, quantities clamped to stock,
// and no identity both in the cart and saved (the cart wins).
func Normalize(s models.Snapshot) models.Snapshot {
	out := models.Snapshot{
		CartLines:  make([]models.CartLine, 0, len(s.CartLines)),
		SavedLines: make([]models.SavedLine, 0, len(s.SavedLines)),
	}

	for _, l := range s.CartLines {
		if idx := findCart(out.CartLines, l.Identity()); idx >= 0 {
			out.CartLines[idx].Quantity += l.Quantity
			continue
		}
		out.CartLines = append(out.CartLines, l)
	}

	kept := out.CartLines[:0]
	for _, l := range out.CartLines {
		if l.Stock < 0 {
			l.Stock = 0
		}
		l.Quantity = min(l.Quantity, l.Stock)
		// a zero quantity survives only as the out-of-stock marker
		if l.Quantity <= 0 && l.Stock > 0 {
			continue
		}
		if l.Quantity < 0 {
			l.Quantity = 0
		}
		kept = append(kept, l)
	}
	out.CartLines = kept

	for _, l := range s.SavedLines {
		if findSaved(out.SavedLines, l.Identity()) >= 0 || findCart(out.CartLines, l.Identity()) >= 0 {
			continue
		}
		out.SavedLines = append(out.SavedLines, l)
	}
	return out
}

// Merge folds a guest snapshot into the authenticated one at login.
// Lines are unioned by identity; on conflict the server's attributes win
// and quantities are summed then clamped to the server's stock. Saved
// lists are unioned, and anything that ended up in the cart leaves saved.
func Merge(server, guest models.Snapshot) models.Snapshot {
	merged := server.Clone()

	for _, g := range guest.CartLines {
		idx := findCart(merged.CartLines, g.Identity())
		if idx < 0 {
			merged.CartLines = append(merged.CartLines, g)
			continue
		}
		line := &merged.CartLines[idx]
		line.Quantity = min(line.Quantity+g.Quantity, line.Stock)
	}

	for _, g := range guest.SavedLines {
		if findSaved(merged.SavedLines, g.Identity()) >= 0 {
			continue
		}
		merged.SavedLines = append(merged.SavedLines, g)
	}

	return Normalize(merged)
}
