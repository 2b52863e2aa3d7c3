package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

// Store is an in-memory implementation of repository.Store.
// It is safe for concurrent use. InTx works on a private copy of the data that is
// swapped in on success, so transactions are serialized. A write made outside a
// transaction waits for the running one to commit and is applied on top of it.
// Data is lost on restart; for persistence use the postgres store.
type Store struct {
	mu       sync.RWMutex
	txMu     *sync.Mutex
	data     *data
	inTx     bool
	failures map[string]error
}

type data struct {
	nextID       int64
	contracts    map[int64]domain.Contract
	transactions map[int64]domain.Transaction
	history      map[int64]domain.ContractHistory
	mappings     map[int64]domain.CSVMapping // keyed by bank ID
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		txMu: &sync.Mutex{},
		data: &data{
			contracts:    make(map[int64]domain.Contract),
			transactions: make(map[int64]domain.Transaction),
			history:      make(map[int64]domain.ContractHistory),
			mappings:     make(map[int64]domain.CSVMapping),
		},
		failures: make(map[string]error),
	}
}

// InjectFailure makes every later call of the named operation (e.g. "InsertContracts")
// fail with err wrapped in domain.ErrStorage. Passing a nil err removes the failure.
func (s *Store) InjectFailure(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
	}
	return nil
}

func (d *data) clone() *data {
	c := &data{
		nextID:       d.nextID,
		contracts:    make(map[int64]domain.Contract, len(d.contracts)),
		transactions: make(map[int64]domain.Transaction, len(d.transactions)),
		history:      make(map[int64]domain.ContractHistory, len(d.history)),
		mappings:     make(map[int64]domain.CSVMapping, len(d.mappings)),
	}
	for k, v := range d.contracts {
		c.contracts[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.history {
		c.history[k] = v
	}
	for k, v := range d.mappings {
		c.mappings[k] = v
	}
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// lockWrite takes the locks a write needs and returns their release. Outside a
// transaction that includes txMu, so the write cannot land between the snapshot of a
// running InTx and its commit.
func (s *Store) lockWrite() func() {
	if s.inTx {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

// InTx implements repository.Store.
// Calling a write of the outer store from inside fn deadlocks; use tx.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &Store{
		txMu:     s.txMu,
		data:     s.data.clone(),
		inTx:     true,
		failures: s.failures,
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = tx.data
	s.mu.Unlock()
	return nil
}

//
// Contracts
//

// LoadOpenContracts implements repository.ContractRepository.
func (s *Store) LoadOpenContracts(ctx context.Context, bankID int64) ([]domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadOpenContracts"); err != nil {
		return nil, err
	}
	return s.filterContracts(func(c domain.Contract) bool {
		return c.BankID == bankID && c.EndDate == nil
	}), nil
}

// LoadContracts implements repository.ContractRepository.
func (s *Store) LoadContracts(ctx context.Context, bankID int64) ([]domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadContracts"); err != nil {
		return nil, err
	}
	return s.filterContracts(func(c domain.Contract) bool {
		return c.BankID == bankID
	}), nil
}

// LoadContractsByIDs implements repository.ContractRepository.
func (s *Store) LoadContractsByIDs(ctx context.Context, ids []int64) ([]domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadContractsByIDs"); err != nil {
		return nil, err
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return s.filterContracts(func(c domain.Contract) bool {
		return wanted[c.ID]
	}), nil
}

func (s *Store) filterContracts(keep func(domain.Contract) bool) []domain.Contract {
	result := []domain.Contract{}
	for _, c := range s.data.contracts {
		if keep(c) {
			result = append(result, copyContract(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// InsertContracts implements repository.ContractRepository.
func (s *Store) InsertContracts(ctx context.Context, contracts []domain.NewContract) ([]domain.Contract, error) {
	defer s.lockWrite()()

	if err := s.fail("InsertContracts"); err != nil {
		return nil, err
	}
	result := make([]domain.Contract, 0, len(contracts))
	for _, nc := range contracts {
		c := domain.Contract{
			ID:                   s.data.id(),
			BankID:               nc.BankID,
			Name:                 nc.Name,
			ParseName:            nc.ParseName,
			CurrentAmount:        nc.CurrentAmount,
			MonthsBetweenPayment: nc.MonthsBetweenPayment,
		}
		s.data.contracts[c.ID] = c
		result = append(result, c)
	}
	return result, nil
}

func (s *Store) updateContract(op string, id int64, apply func(*domain.Contract)) error {
	defer s.lockWrite()()

	if err := s.fail(op); err != nil {
		return err
	}
	c, ok := s.data.contracts[id]
	if !ok {
		return fmt.Errorf("%s: contract %d: %w", op, id, domain.ErrNotFound)
	}
	apply(&c)
	s.data.contracts[id] = c
	return nil
}

// UpdateContractAmount implements repository.ContractRepository.
func (s *Store) UpdateContractAmount(ctx context.Context, contractID int64, amount money.Amount) error {
	return s.updateContract("UpdateContractAmount", contractID, func(c *domain.Contract) {
		c.CurrentAmount = amount
	})
}

// UpdateContractEndDate implements repository.ContractRepository.
func (s *Store) UpdateContractEndDate(ctx context.Context, contractID int64, endDate *time.Time) error {
	return s.updateContract("UpdateContractEndDate", contractID, func(c *domain.Contract) {
		c.EndDate = copyTime(endDate)
	})
}

// UpdateContractName implements repository.ContractRepository.
func (s *Store) UpdateContractName(ctx context.Context, contractID int64, name string) error {
	return s.updateContract("UpdateContractName", contractID, func(c *domain.Contract) {
		c.Name = name
	})
}

// DeleteContracts implements repository.ContractRepository.
// Transactions still pointing at a deleted contract are unlinked, like ON DELETE SET NULL.
func (s *Store) DeleteContracts(ctx context.Context, ids []int64) error {
	defer s.lockWrite()()

	if err := s.fail("DeleteContracts"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.data.contracts, id)
		for txID, tx := range s.data.transactions {
			if tx.ContractID != nil && *tx.ContractID == id {
				tx.ContractID = nil
				s.data.transactions[txID] = tx
			}
		}
	}
	return nil
}

//
// Transactions
//

// InsertTransactions implements repository.TransactionRepository.
func (s *Store) InsertTransactions(ctx context.Context, txs []domain.NewTransaction) ([]domain.Transaction, error) {
	defer s.lockWrite()()

	if err := s.fail("InsertTransactions"); err != nil {
		return nil, err
	}
	result := make([]domain.Transaction, 0, len(txs))
	for _, nt := range txs {
		tx := domain.Transaction{
			ID:           s.data.id(),
			BankID:       nt.BankID,
			Date:         domain.Date(nt.Date),
			Counterparty: nt.Counterparty,
			Amount:       nt.Amount,
			BalanceAfter: nt.BalanceAfter,
		}
		s.data.transactions[tx.ID] = tx
		result = append(result, tx)
	}
	return result, nil
}

// LoadTransaction implements repository.TransactionRepository.
func (s *Store) LoadTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadTransaction"); err != nil {
		return domain.Transaction{}, err
	}
	tx, ok := s.data.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("LoadTransaction: transaction %d: %w", id, domain.ErrNotFound)
	}
	return copyTransaction(tx), nil
}

// LoadUnlinkedTransactions implements repository.TransactionRepository.
func (s *Store) LoadUnlinkedTransactions(ctx context.Context, bankID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadUnlinkedTransactions"); err != nil {
		return nil, err
	}
	return s.filterTransactions(func(t domain.Transaction) bool {
		return t.BankID == bankID && t.ContractID == nil && !t.ContractNotAllowed
	}), nil
}

// LoadTransactionsOfBank implements repository.TransactionRepository.
func (s *Store) LoadTransactionsOfBank(ctx context.Context, bankID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadTransactionsOfBank"); err != nil {
		return nil, err
	}
	return s.filterTransactions(func(t domain.Transaction) bool {
		return t.BankID == bankID
	}), nil
}

// LoadTransactionsOfContract implements repository.TransactionRepository.
func (s *Store) LoadTransactionsOfContract(ctx context.Context, contractID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadTransactionsOfContract"); err != nil {
		return nil, err
	}
	return s.filterTransactions(func(t domain.Transaction) bool {
		return t.ContractID != nil && *t.ContractID == contractID
	}), nil
}

// LatestTransactionOfBank implements repository.TransactionRepository.
func (s *Store) LatestTransactionOfBank(ctx context.Context, bankID int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LatestTransactionOfBank"); err != nil {
		return nil, err
	}
	return latest(s.filterTransactions(func(t domain.Transaction) bool {
		return t.BankID == bankID
	})), nil
}

// LatestTransactionOfContract implements repository.TransactionRepository.
func (s *Store) LatestTransactionOfContract(ctx context.Context, contractID int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LatestTransactionOfContract"); err != nil {
		return nil, err
	}
	return latest(s.filterTransactions(func(t domain.Transaction) bool {
		return t.ContractID != nil && *t.ContractID == contractID
	})), nil
}

func latest(sorted []domain.Transaction) *domain.Transaction {
	if len(sorted) == 0 {
		return nil
	}
	tx := sorted[len(sorted)-1]
	return &tx
}

func (s *Store) filterTransactions(keep func(domain.Transaction) bool) []domain.Transaction {
	result := []domain.Transaction{}
	for _, t := range s.data.transactions {
		if keep(t) {
			result = append(result, copyTransaction(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// LinkTransactions implements repository.TransactionRepository.
func (s *Store) LinkTransactions(ctx context.Context, txIDs []int64, contractID *int64) error {
	defer s.lockWrite()()

	if err := s.fail("LinkTransactions"); err != nil {
		return err
	}
	for _, id := range txIDs {
		tx, ok := s.data.transactions[id]
		if !ok {
			return fmt.Errorf("LinkTransactions: transaction %d: %w", id, domain.ErrNotFound)
		}
		tx.ContractID = copyID(contractID)
		s.data.transactions[id] = tx
	}
	return nil
}

// RelinkTransactions implements repository.TransactionRepository.
func (s *Store) RelinkTransactions(ctx context.Context, from []int64, to int64) error {
	defer s.lockWrite()()

	if err := s.fail("RelinkTransactions"); err != nil {
		return err
	}
	moved := make(map[int64]bool, len(from))
	for _, id := range from {
		moved[id] = true
	}
	for id, tx := range s.data.transactions {
		if tx.ContractID != nil && moved[*tx.ContractID] {
			tx.ContractID = copyID(&to)
			s.data.transactions[id] = tx
		}
	}
	return nil
}

// SetTransactionHidden implements repository.TransactionRepository.
func (s *Store) SetTransactionHidden(ctx context.Context, id int64, hidden bool) error {
	return s.updateTransaction("SetTransactionHidden", id, func(t *domain.Transaction) {
		t.Hidden = hidden
	})
}

// SetContractNotAllowed implements repository.TransactionRepository.
func (s *Store) SetContractNotAllowed(ctx context.Context, id int64, notAllowed bool) error {
	return s.updateTransaction("SetContractNotAllowed", id, func(t *domain.Transaction) {
		t.ContractNotAllowed = notAllowed
	})
}

func (s *Store) updateTransaction(op string, id int64, apply func(*domain.Transaction)) error {
	defer s.lockWrite()()

	if err := s.fail(op); err != nil {
		return err
	}
	tx, ok := s.data.transactions[id]
	if !ok {
		return fmt.Errorf("%s: transaction %d: %w", op, id, domain.ErrNotFound)
	}
	apply(&tx)
	s.data.transactions[id] = tx
	return nil
}

//
// History
//

// LoadContractHistory implements repository.HistoryRepository.
func (s *Store) LoadContractHistory(ctx context.Context, contractID int64) ([]domain.ContractHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadContractHistory"); err != nil {
		return nil, err
	}
	result := []domain.ContractHistory{}
	for _, h := range s.data.history {
		if h.ContractID == contractID {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ChangedAt.Equal(result[j].ChangedAt) {
			return result[i].ChangedAt.Before(result[j].ChangedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// InsertContractHistory implements repository.HistoryRepository.
func (s *Store) InsertContractHistory(ctx context.Context, rows []domain.NewContractHistory) ([]domain.ContractHistory, error) {
	defer s.lockWrite()()

	if err := s.fail("InsertContractHistory"); err != nil {
		return nil, err
	}
	result := make([]domain.ContractHistory, 0, len(rows))
	for _, r := range rows {
		if _, ok := s.data.contracts[r.ContractID]; !ok {
			return nil, fmt.Errorf("InsertContractHistory: contract %d: %w", r.ContractID, domain.ErrNotFound)
		}
		h := domain.ContractHistory{
			ID:         s.data.id(),
			ContractID: r.ContractID,
			OldAmount:  r.OldAmount,
			NewAmount:  r.NewAmount,
			ChangedAt:  domain.Date(r.ChangedAt),
		}
		s.data.history[h.ID] = h
		result = append(result, h)
	}
	return result, nil
}

// UpdateContractHistory implements repository.HistoryRepository.
func (s *Store) UpdateContractHistory(ctx context.Context, row domain.ContractHistory) error {
	defer s.lockWrite()()

	if err := s.fail("UpdateContractHistory"); err != nil {
		return err
	}
	if _, ok := s.data.history[row.ID]; !ok {
		return fmt.Errorf("UpdateContractHistory: history %d: %w", row.ID, domain.ErrNotFound)
	}
	row.ChangedAt = domain.Date(row.ChangedAt)
	s.data.history[row.ID] = row
	return nil
}

// DeleteContractHistory implements repository.HistoryRepository.
func (s *Store) DeleteContractHistory(ctx context.Context, ids []int64) error {
	defer s.lockWrite()()

	if err := s.fail("DeleteContractHistory"); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.data.history, id)
	}
	return nil
}

//
// CSV mappings
//

// LoadCSVMapping implements repository.MappingRepository.
func (s *Store) LoadCSVMapping(ctx context.Context, bankID int64) (domain.CSVMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("LoadCSVMapping"); err != nil {
		return domain.CSVMapping{}, err
	}
	m, ok := s.data.mappings[bankID]
	if !ok {
		return domain.CSVMapping{}, fmt.Errorf("LoadCSVMapping: bank %d: %w", bankID, domain.ErrNotFound)
	}
	return m, nil
}

// SaveCSVMapping implements repository.MappingRepository.
func (s *Store) SaveCSVMapping(ctx context.Context, mapping domain.CSVMapping) (domain.CSVMapping, error) {
	defer s.lockWrite()()

	if err := s.fail("SaveCSVMapping"); err != nil {
		return domain.CSVMapping{}, err
	}
	if existing, ok := s.data.mappings[mapping.BankID]; ok {
		mapping.ID = existing.ID
	} else {
		mapping.ID = s.data.id()
	}
	s.data.mappings[mapping.BankID] = mapping
	return mapping, nil
}

func copyContract(c domain.Contract) domain.Contract {
	c.EndDate = copyTime(c.EndDate)
	return c
}

func copyTransaction(t domain.Transaction) domain.Transaction {
	t.ContractID = copyID(t.ContractID)
	return t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := domain.Date(*t)
	return &v
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)
