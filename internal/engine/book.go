package engine

import "paperTrader/internal/domain"

// positionBook indexes the open positions by ID and by coin. The coin index
// keeps price-tick revaluation proportional to the positions actually
// holding that coin.
type positionBook struct {
	byID   map[string]*domain.Position
	byCoin map[string]map[string]*domain.Position
}

func newPositionBook() *positionBook {
	return &positionBook{
		byID:   make(map[string]*domain.Position),
		byCoin: make(map[string]map[string]*domain.Position),
	}
}

func (b *positionBook) add(pos *domain.Position) {
	b.byID[pos.ID] = pos
	coinIdx, ok := b.byCoin[pos.Coin]
	if !ok {
		coinIdx = make(map[string]*domain.Position)
		b.byCoin[pos.Coin] = coinIdx
	}
	coinIdx[pos.ID] = pos
}

func (b *positionBook) remove(pos *domain.Position) {
	delete(b.byID, pos.ID)
	if coinIdx, ok := b.byCoin[pos.Coin]; ok {
		delete(coinIdx, pos.ID)
		if len(coinIdx) == 0 {
			delete(b.byCoin, pos.Coin)
		}
	}
}

func (b *positionBook) get(id string) (*domain.Position, bool) {
	pos, ok := b.byID[id]
	return pos, ok
}

func (b *positionBook) onCoin(coin string) []*domain.Position {
	coinIdx := b.byCoin[coin]
	if len(coinIdx) == 0 {
		return nil
	}
	positions := make([]*domain.Position, 0, len(coinIdx))
	for _, pos := range coinIdx {
		positions = append(positions, pos)
	}
	return positions
}

func (b *positionBook) all() []*domain.Position {
	positions := make([]*domain.Position, 0, len(b.byID))
	for _, pos := range b.byID {
		positions = append(positions, pos)
	}
	return positions
}

func (b *positionBook) len() int {
	return len(b.byID)
}
