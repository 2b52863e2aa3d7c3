package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/contract-tracker/internal/domain"
	"github.com/dvloznov/contract-tracker/internal/money"
	"github.com/dvloznov/contract-tracker/internal/repository"
)

func seedTransactions(t *testing.T, s *Store, bankID int64, dates ...string) []domain.Transaction {
	t.Helper()
	var rows []domain.NewTransaction
	for _, d := range dates {
		rows = append(rows, domain.NewTransaction{
			BankID:       bankID,
			Date:         domain.MustDate(d),
			Counterparty: "Shop",
			Amount:       money.MustParse("-1.00"),
		})
	}
	txs, err := s.InsertTransactions(context.Background(), rows)
	if err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
	return txs
}

func TestStore_TransactionOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	txs := seedTransactions(t, s, 1, "2024-03-01", "2024-01-01", "2024-02-01")
	seedTransactions(t, s, 2, "2025-01-01")

	contracts, err := s.InsertContracts(ctx, []domain.NewContract{{BankID: 1, Name: "Shop", ParseName: "Shop"}})
	if err != nil {
		t.Fatalf("InsertContracts: %v", err)
	}
	contractID := contracts[0].ID
	if err := s.LinkTransactions(ctx, []int64{txs[0].ID}, &contractID); err != nil {
		t.Fatalf("LinkTransactions: %v", err)
	}
	if err := s.SetContractNotAllowed(ctx, txs[1].ID, true); err != nil {
		t.Fatalf("SetContractNotAllowed: %v", err)
	}

	all, err := s.LoadTransactionsOfBank(ctx, 1)
	if err != nil {
		t.Fatalf("LoadTransactionsOfBank: %v", err)
	}
	if len(all) != 3 || !all[0].Date.Equal(domain.MustDate("2024-01-01")) || !all[2].Date.Equal(domain.MustDate("2024-03-01")) {
		t.Errorf("transactions not ordered by date: %+v", all)
	}

	unlinked, err := s.LoadUnlinkedTransactions(ctx, 1)
	if err != nil {
		t.Fatalf("LoadUnlinkedTransactions: %v", err)
	}
	if len(unlinked) != 1 || unlinked[0].ID != txs[2].ID {
		t.Errorf("unlinked = %+v, want only transaction %d", unlinked, txs[2].ID)
	}

	latest, err := s.LatestTransactionOfBank(ctx, 1)
	if err != nil || latest == nil || latest.ID != txs[0].ID {
		t.Errorf("LatestTransactionOfBank = %+v, %v", latest, err)
	}
	none, err := s.LatestTransactionOfContract(ctx, 12345)
	if err != nil || none != nil {
		t.Errorf("LatestTransactionOfContract(unknown) = %+v, %v", none, err)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	contracts, _ := s.InsertContracts(ctx, []domain.NewContract{{BankID: 1, Name: "A"}})
	end := domain.MustDate("2024-01-01")
	if err := s.UpdateContractEndDate(ctx, contracts[0].ID, &end); err != nil {
		t.Fatalf("UpdateContractEndDate: %v", err)
	}

	loaded, _ := s.LoadContracts(ctx, 1)
	*loaded[0].EndDate = domain.MustDate("1999-01-01")
	end = domain.MustDate("1999-01-01")

	again, _ := s.LoadContracts(ctx, 1)
	if !again[0].EndDate.Equal(domain.MustDate("2024-01-01")) {
		t.Errorf("stored end date changed through a returned pointer: %v", again[0].EndDate)
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if _, err := s.LoadTransaction(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LoadTransaction error = %v", err)
	}
	if err := s.UpdateContractAmount(ctx, 1, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateContractAmount error = %v", err)
	}
	if _, err := s.LoadCSVMapping(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("LoadCSVMapping error = %v", err)
	}
	if _, err := s.InsertContractHistory(ctx, []domain.NewContractHistory{{ContractID: 1}}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("InsertContractHistory error = %v", err)
	}
}

func TestStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, err := tx.InsertContracts(ctx, []domain.NewContract{{BankID: 1, Name: "A"}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	contracts, _ := s.LoadContracts(ctx, 1)
	if len(contracts) != 0 {
		t.Errorf("rolled back insert is visible: %+v", contracts)
	}
}

func TestStore_InTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		_, err := tx.InsertContracts(ctx, []domain.NewContract{{BankID: 1, Name: "A"}})
		if err != nil {
			return err
		}
		// nested transactions join the outer one
		return tx.InTx(ctx, func(ctx context.Context, inner repository.Store) error {
			_, err := inner.InsertContracts(ctx, []domain.NewContract{{BankID: 1, Name: "B"}})
			return err
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	contracts, _ := s.LoadContracts(ctx, 1)
	if len(contracts) != 2 {
		t.Errorf("got %d contracts, want 2", len(contracts))
	}
}

func TestStore_InjectFailure(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	down := errors.New("down")

	s.InjectFailure("LoadContracts", down)
	if _, err := s.LoadContracts(ctx, 1); !errors.Is(err, domain.ErrStorage) || !errors.Is(err, down) {
		t.Errorf("error = %v, want storage failure wrapping down", err)
	}

	s.InjectFailure("LoadContracts", nil)
	if _, err := s.LoadContracts(ctx, 1); err != nil {
		t.Errorf("error after clearing failure = %v", err)
	}
}

func TestStore_ConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(bank int64) {
			defer wg.Done()
			_ = s.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
				_, err := tx.InsertContracts(ctx, []domain.NewContract{{BankID: bank, Name: "A"}})
				return err
			})
		}(int64(i % 2))
	}
	wg.Wait()

	a, _ := s.LoadContracts(ctx, 0)
	b, _ := s.LoadContracts(ctx, 1)
	if len(a)+len(b) != 20 {
		t.Errorf("got %d contracts, want 20", len(a)+len(b))
	}
}

func TestStore_WriteDuringTransactionSurvivesCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	gym, err := s.InsertContracts(ctx, []domain.NewContract{{BankID: 2, Name: "Gym"}})
	if err != nil {
		t.Fatalf("InsertContracts: %v", err)
	}
	booked := seedTransactions(t, s, 2, "2024-01-10")[0]

	started := make(chan struct{})
	release := make(chan struct{})
	committed := make(chan error, 1)
	go func() {
		committed <- s.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
			close(started)
			<-release
			_, err := tx.InsertContracts(ctx, []domain.NewContract{{BankID: 1, Name: "Scan"}})
			return err
		})
	}()
	<-started

	written := make(chan error, 1)
	go func() {
		if err := s.UpdateContractName(ctx, gym[0].ID, "Fitness"); err != nil {
			written <- err
			return
		}
		if err := s.SetTransactionHidden(ctx, booked.ID, true); err != nil {
			written <- err
			return
		}
		col := 0
		_, err := s.SaveCSVMapping(ctx, domain.CSVMapping{BankID: 2, DateColumn: &col})
		written <- err
	}()

	// The writes wait for the open transaction instead of landing in the data its
	// commit replaces.
	select {
	case err := <-written:
		t.Fatalf("write finished while a transaction was open: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-committed; err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := <-written; err != nil {
		t.Fatalf("write outside transaction: %v", err)
	}

	got, err := s.LoadContractsByIDs(ctx, []int64{gym[0].ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("LoadContractsByIDs = %v, %v", got, err)
	}
	if got[0].Name != "Fitness" {
		t.Errorf("name = %q, want Fitness", got[0].Name)
	}
	hidden, err := s.LoadTransactionsOfBank(ctx, 2)
	if err != nil || len(hidden) != 1 || !hidden[0].Hidden {
		t.Errorf("transaction = %+v, %v, want hidden", hidden, err)
	}
	if _, err := s.LoadCSVMapping(ctx, 2); err != nil {
		t.Errorf("LoadCSVMapping: %v", err)
	}
	if scanned, _ := s.LoadContracts(ctx, 1); len(scanned) != 1 {
		t.Errorf("got %d contracts of bank 1, want 1", len(scanned))
	}
}
