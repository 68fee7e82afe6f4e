package cart

import (
	"testing"

	"cart-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSumsQuantitiesClampedToServerStock(t *testing.T) {
	serverLine := withQty(testLine("p1", 4, 10), 3)
	guestLine := withQty(testLine("p1", 9, 8), 2)

	merged := Merge(snapshotWith(serverLine), snapshotWith(guestLine, withQty(testLine("p2", 5, 1), 1)))

	require.Len(t, merged.CartLines, 2)
	assert.Equal(t, 4, merged.CartLines[0].Quantity)
	assert.Equal(t, 10.0, merged.CartLines[0].Price)
	assert.Equal(t, "p2", merged.CartLines[1].ID)
}

func TestMergeDropsSavedLinesThatAreInCart(t *testing.T) {
	p1 := testLine("p1", 4, 10)
	p2 := testLine("p2", 4, 10)
	server := models.Snapshot{SavedLines: []models.SavedLine{p1.Saved()}}
	guest := models.Snapshot{
		CartLines:  []models.CartLine{withQty(p1, 1)},
		SavedLines: []models.SavedLine{p2.Saved(), p1.Saved()},
	}

	merged := Merge(server, guest)

	require.Len(t, merged.CartLines, 1)
	require.Len(t, merged.SavedLines, 1)
	assert.Equal(t, "p2", merged.SavedLines[0].ID)
}

func TestMergeWithEmptyGuestKeepsServer(t *testing.T) {
	server := snapshotWith(withQty(testLine("p1", 4, 10), 2))
	merged := Merge(server, models.Snapshot{})
	assert.True(t, merged.Equal(server))
}

func TestNormalizeCollapsesDuplicatesAndClamps(t *testing.T) {
	p1 := testLine("p1", 5, 10)
	in := models.Snapshot{
		CartLines: []models.CartLine{
			withQty(p1, 3),
			withQty(p1, 4),
			withQty(testLine("p2", 5, 1), 0),
			withQty(testLine("p3", 0, 1), 0),
		},
		SavedLines: []models.SavedLine{p1.Saved(), testLine("p4", 1, 1).Saved(), testLine("p4", 1, 1).Saved()},
	}

	out := Normalize(in)

	require.Len(t, out.CartLines, 2)
	assert.Equal(t, 5, out.CartLines[0].Quantity)
	assert.Equal(t, "p3", out.CartLines[1].ID)
	require.Len(t, out.SavedLines, 1)
	assert.Equal(t, "p4", out.SavedLines[0].ID)
}
