package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cart-sync/internal/models"
	"cart-sync/internal/util"
)

type cartLineRow struct {
	UserID          string  `db:"user_id"`
	ProductID       string  `db:"product_id"`
	VariantID       string  `db:"variant_id"`
	VariantName     string  `db:"variant_name"`
	Name            string  `db:"name"`
	Price           float64 `db:"price"`
	Image           string  `db:"image"`
	Slug            string  `db:"slug"`
	Stock           int     `db:"stock"`
	Quantity        int     `db:"quantity"`
	CreatorID       string  `db:"creator_id"`
	CreatorName     string  `db:"creator_name"`
	CreatorVerified bool    `db:"creator_verified"`
	Position        int     `db:"position"`
}

type savedLineRow struct {
	UserID          string  `db:"user_id"`
	ProductID       string  `db:"product_id"`
	VariantID       string  `db:"variant_id"`
	VariantName     string  `db:"variant_name"`
	Name            string  `db:"name"`
	Price           float64 `db:"price"`
	Image           string  `db:"image"`
	Slug            string  `db:"slug"`
	Stock           int     `db:"stock"`
	CreatorID       string  `db:"creator_id"`
	CreatorName     string  `db:"creator_name"`
	CreatorVerified bool    `db:"creator_verified"`
	Position        int     `db:"position"`
}

func (r cartLineRow) toModel() models.CartLine {
	return models.CartLine{
		ID:          r.ProductID,
		Name:        r.Name,
		Price:       r.Price,
		Image:       r.Image,
		Slug:        r.Slug,
		Stock:       r.Stock,
		Quantity:    r.Quantity,
		VariantID:   r.VariantID,
		VariantName: r.VariantName,
		Creator:     models.Creator{ID: r.CreatorID, Name: r.CreatorName, IsVerified: r.CreatorVerified},
	}
}

func (r savedLineRow) toModel() models.SavedLine {
	return models.SavedLine{
		ID:          r.ProductID,
		Name:        r.Name,
		Price:       r.Price,
		Image:       r.Image,
		Slug:        r.Slug,
		Stock:       r.Stock,
		VariantID:   r.VariantID,
		VariantName: r.VariantName,
		Creator:     models.Creator{ID: r.CreatorID, Name: r.CreatorName, IsVerified: r.CreatorVerified},
	}
}

const insertCartLine = `
	INSERT INTO cart_lines (user_id, product_id, variant_id, variant_name, name, price, image, slug,
		stock, quantity, creator_id, creator_name, creator_verified, position)
	VALUES (:user_id, :product_id, :variant_id, :variant_name, :name, :price, :image, :slug,
		:stock, :quantity, :creator_id, :creator_name, :creator_verified, :position)`

const insertSavedLine = `
	INSERT INTO saved_lines (user_id, product_id, variant_id, variant_name, name, price, image, slug,
		stock, creator_id, creator_name, creator_verified, position)
	VALUES (:user_id, :product_id, :variant_id, :variant_name, :name, :price, :image, :slug,
		:stock, :creator_id, :creator_name, :creator_verified, :position)`

// GetSnapshot loads a user's cart and saved lists with the snapshot version
func (s *Store) GetSnapshot(ctx context.Context, userID string) (models.Snapshot, int64, error) {
	ctx, span := util.StartSpan(ctx, "Store.GetSnapshot")
	defer span.End()

	var version int64
	err := s.db.GetContext(ctx, &version, "SELECT version FROM cart_snapshots WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, 0, ErrCartNotFound
	}
	if err != nil {
		util.RecordError(span, err)
		return models.Snapshot{}, 0, fmt.Errorf("failed to load cart version: %w", err)
	}

	var cartRows []cartLineRow
	if err := s.db.SelectContext(ctx, &cartRows,
		"SELECT * FROM cart_lines WHERE user_id = $1 ORDER BY position", userID); err != nil {
		util.RecordError(span, err)
		return models.Snapshot{}, 0, fmt.Errorf("failed to load cart lines: %w", err)
	}

	var savedRows []savedLineRow
	if err := s.db.SelectContext(ctx, &savedRows,
		"SELECT * FROM saved_lines WHERE user_id = $1 ORDER BY position", userID); err != nil {
		util.RecordError(span, err)
		return models.Snapshot{}, 0, fmt.Errorf("failed to load saved lines: %w", err)
	}

	snapshot := models.Snapshot{
		CartLines:  make([]models.CartLine, 0, len(cartRows)),
		SavedLines: make([]models.SavedLine, 0, len(savedRows)),
	}
	for _, r := range cartRows {
		snapshot.CartLines = append(snapshot.CartLines, r.toModel())
	}
	for _, r := range savedRows {
		snapshot.SavedLines = append(snapshot.SavedLines, r.toModel())
	}
	return snapshot, version, nil
}

// ReplaceSnapshotTx replaces both lists in one transaction and returns the
// new snapshot version. The version row is locked first so concurrent
// replaces for one user serialize.
func (s *Store) ReplaceSnapshotTx(ctx context.Context, userID string, snapshot models.Snapshot) (int64, error) {
	ctx, span := util.StartSpan(ctx, "Store.ReplaceSnapshotTx")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var version int64
	err = tx.GetContext(ctx, &version, `
		INSERT INTO cart_snapshots (user_id, version, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
			SET version = cart_snapshots.version + 1, updated_at = NOW()
		RETURNING version`, userID)
	if err != nil {
		util.RecordError(span, err)
		return 0, fmt.Errorf("failed to bump cart version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_lines WHERE user_id = $1", userID); err != nil {
		return 0, fmt.Errorf("failed to clear cart lines: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM saved_lines WHERE user_id = $1", userID); err != nil {
		return 0, fmt.Errorf("failed to clear saved lines: %w", err)
	}

	for i, l := range snapshot.CartLines {
		row := cartLineRow{
			UserID: userID, ProductID: l.ID, VariantID: l.VariantID, VariantName: l.VariantName,
			Name: l.Name, Price: l.Price, Image: l.Image, Slug: l.Slug, Stock: l.Stock, Quantity: l.Quantity,
			CreatorID: l.Creator.ID, CreatorName: l.Creator.Name, CreatorVerified: l.Creator.IsVerified,
			Position: i,
		}
		if _, err := tx.NamedExecContext(ctx, insertCartLine, row); err != nil {
			util.RecordError(span, err)
			return 0, fmt.Errorf("failed to insert cart line %s: %w", l.ID, err)
		}
	}

	for i, l := range snapshot.SavedLines {
		row := savedLineRow{
			UserID: userID, ProductID: l.ID, VariantID: l.VariantID, VariantName: l.VariantName,
			Name: l.Name, Price: l.Price, Image: l.Image, Slug: l.Slug, Stock: l.Stock,
			CreatorID: l.Creator.ID, CreatorName: l.Creator.Name, CreatorVerified: l.Creator.IsVerified,
			Position: i,
		}
		if _, err := tx.NamedExecContext(ctx, insertSavedLine, row); err != nil {
			util.RecordError(span, err)
			return 0, fmt.Errorf("failed to insert saved line %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return version, nil
}
