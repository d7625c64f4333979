package inventory

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// 英数字、ハイフン、アンダースコア、ドットのみ許可
	itemCodePattern  = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	referencePattern = regexp.MustCompile(`^[a-zA-Z0-9_.:/-]*$`)
)

// ValidateItemCode 商品コードの形式をバリデーション
func ValidateItemCode(itemCode string) error {
	if itemCode == "" {
		return NewValidationError("item_code", "商品コードが空です", itemCode)
	}
	if len(itemCode) > 64 {
		return NewValidationError("item_code", "商品コードが長すぎます", itemCode)
	}
	if !itemCodePattern.MatchString(itemCode) {
		return NewValidationError("item_code", "商品コードに無効な文字が含まれています", itemCode)
	}
	return nil
}

// ValidateQuantity 数量をバリデーション（正の値のみ）
func ValidateQuantity(quantity int64) error {
	if quantity <= 0 {
		return NewValidationError("quantity", "数量は正の値である必要があります", fmt.Sprintf("%d", quantity))
	}
	if quantity > 999999999 {
		return NewValidationError("quantity", "数量が有効範囲を超えています", fmt.Sprintf("%d", quantity))
	}
	return nil
}

// ValidateTier 階層をバリデーション
func ValidateTier(tier Tier) error {
	if !tier.Valid() {
		return NewValidationError("tier", "無効な在庫階層です", string(tier))
	}
	return nil
}

// ValidateSellableTier 販売可能な階層（棚・バックルーム）かをバリデーション
func ValidateSellableTier(tier Tier) error {
	if tier != TierShelf && tier != TierStore {
		return NewValidationError("tier", "確定できるのは棚またはバックルームのみです", string(tier))
	}
	return nil
}

// ValidateChannel 販売チャネルをバリデーション
func ValidateChannel(channel Channel) error {
	_, _, err := channel.Tiers()
	return err
}

// ValidateReference 参照番号の形式をバリデーション
func ValidateReference(reference string) error {
	if reference == "" {
		return nil // 参照番号は任意
	}
	if len(reference) > 500 {
		return NewValidationError("reference", "参照番号が長すぎます", reference)
	}
	if !referencePattern.MatchString(reference) {
		return NewValidationError("reference", "参照番号に無効な文字が含まれています", reference)
	}
	return nil
}

// ValidateReservations 確定対象の予約一覧をバリデーション
func ValidateReservations(reservations []Reservation, tier Tier) error {
	if len(reservations) == 0 {
		return NewValidationError("reservations", "予約が空です", "0")
	}
	for i, r := range reservations {
		if r.BatchID <= 0 {
			return NewValidationError(fmt.Sprintf("reservations[%d].batch_id", i), "バッチIDが無効です", fmt.Sprintf("%d", r.BatchID))
		}
		if err := ValidateItemCode(r.ItemCode); err != nil {
			return err
		}
		if err := ValidateQuantity(r.Quantity); err != nil {
			return err
		}
		if r.Tier != "" && r.Tier != tier {
			return NewValidationError(fmt.Sprintf("reservations[%d].tier", i), "予約の階層が一致しません", string(r.Tier))
		}
	}
	return nil
}

// ValidateTransfer 階層間移動リクエストをバリデーション
func ValidateTransfer(req TransferRequest) error {
	if err := ValidateItemCode(req.ItemCode); err != nil {
		return err
	}
	if err := ValidateTier(req.From); err != nil {
		return err
	}
	if err := ValidateTier(req.To); err != nil {
		return err
	}
	if req.From == req.To {
		return NewValidationError("to", "移動元と移動先が同じです", string(req.To))
	}
	if err := ValidateQuantity(req.Quantity); err != nil {
		return err
	}
	return ValidateReference(req.Reference)
}

// ValidateItem 商品全体をバリデーション
func ValidateItem(item *Item) error {
	if item == nil {
		return NewValidationError("item", "商品が指定されていません", "nil")
	}

	if err := ValidateItemCode(item.Code); err != nil {
		return err
	}
	if strings.TrimSpace(item.Name) == "" {
		return NewValidationError("name", "商品名が空です", item.Name)
	}
	if len(item.Name) > 500 {
		return NewValidationError("name", "商品名が長すぎます", item.Name)
	}
	if item.UnitPrice.IsNegative() {
		return NewValidationError("unit_price", "単価は0以上である必要があります", item.UnitPrice.String())
	}
	if item.RestockLevel != nil && *item.RestockLevel < 0 {
		return NewValidationError("restock_level", "補充レベルは0以上である必要があります", fmt.Sprintf("%d", *item.RestockLevel))
	}

	return nil
}

// ValidateBatch バッチ全体をバリデーション
func ValidateBatch(batch *Batch) error {
	if batch == nil {
		return NewValidationError("batch", "バッチが指定されていません", "nil")
	}

	if err := ValidateItemCode(batch.ItemCode); err != nil {
		return err
	}
	for _, tier := range []Tier{TierShelf, TierStore, TierMain} {
		if qty := batch.Quantity(tier); qty < 0 {
			return NewValidationError("qty_"+strings.ToLower(string(tier)), "負の数量は許可されていません", fmt.Sprintf("%d", qty))
		}
	}

	return nil
}
