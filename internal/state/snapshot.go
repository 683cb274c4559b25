// Snapshot persistence: the whole mutable state is written to a local
// SQLite file in one transaction and restored (with migrations) on
// startup. Chains, balances, subscriptions, withdraw requests,
// whitelist, and global config are all written in one transaction on Save
// and reconstructed in one pass on Load; migrations for rows written by an
// older schema version are applied in migrate.go.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/chainrelay/publisher/internal/balance"
	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/subscription"
	"github.com/chainrelay/publisher/internal/whitelist"
	"github.com/chainrelay/publisher/internal/withdraw"
)

// CurrentSchemaVersion is bumped whenever Save's table layout changes in a
// way Load must branch on.
const CurrentSchemaVersion = 2

// SnapshotDB opens (creating if needed) the SQLite file backing Save/Load.
func SnapshotDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open snapshot db %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping snapshot db %s: %w", path, err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS config (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	tx_fee TEXT NOT NULL,
	key_name TEXT NOT NULL,
	subs_limit_wallet INTEGER NOT NULL,
	subs_limit_total INTEGER NOT NULL,
	timer_frequency TEXT NOT NULL,
	pma TEXT NOT NULL,
	controllers TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS timer (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	handle TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chains (
	chain_id TEXT PRIMARY KEY,
	rpc TEXT NOT NULL,
	min_balance TEXT NOT NULL,
	block_gas_limit TEXT NOT NULL,
	fee TEXT,
	symbol TEXT NOT NULL,
	multicall_contract TEXT
);
CREATE TABLE IF NOT EXISTS balances (
	chain_id TEXT NOT NULL,
	address TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (chain_id, address)
);
CREATE TABLE IF NOT EXISTS balance_nonces (
	chain_id TEXT NOT NULL,
	address TEXT NOT NULL,
	nonce TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	id INTEGER PRIMARY KEY,
	chain_id TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL,
	contract_addr TEXT NOT NULL,
	frequency TEXT,
	method_name TEXT NOT NULL,
	method_abi TEXT NOT NULL,
	method_gas_limit TEXT NOT NULL,
	method_kind INTEGER NOT NULL,
	method_pair_id TEXT NOT NULL DEFAULT '',
	method_param_type TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL,
	last_update TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscription_counter (id INTEGER PRIMARY KEY CHECK (id = 1), next_id INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS withdraw_requests (
	chain_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	amount TEXT NOT NULL,
	receiver TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS withdraw_chains (chain_id TEXT PRIMARY KEY);
CREATE TABLE IF NOT EXISTS whitelist (
	address TEXT PRIMARY KEY,
	is_blacklisted INTEGER NOT NULL
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("state: create snapshot schema: %w", err)
	}
	return nil
}

// HasSnapshot reports whether db holds a previously saved snapshot, as
// opposed to a freshly created (or wiped) file. Callers use it to decide
// between restoring and seeding from configuration.
func HasSnapshot(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM config WHERE id = 1`).Scan(&n); err != nil {
		return false, fmt.Errorf("state: probe snapshot: %w", err)
	}
	return n > 0, nil
}

// Save writes s's entire contents into db in one transaction, overwriting
// whatever snapshot was there before.
func Save(ctx context.Context, db *sql.DB, s *Store) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"config", "timer", "chains", "balances", "balance_nonces",
		"subscriptions", "subscription_counter", "withdraw_requests",
		"withdraw_chains", "whitelist",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("state: clear %s: %w", table, err)
		}
	}

	cfg := s.Config()
	controllers := strings.Join(cfg.Controllers, ",")
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO config (id, tx_fee, key_name, subs_limit_wallet, subs_limit_total, timer_frequency, pma, controllers)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		bigString(cfg.TxFee), cfg.KeyName, cfg.SubsLimitWallet, cfg.SubsLimitTotal,
		bigString(cfg.TimerFrequency), cfg.PMA.Hex(), controllers,
	); err != nil {
		return fmt.Errorf("state: save config: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO timer (id, handle) VALUES (1, ?)`, s.Timer.ID()); err != nil {
		return fmt.Errorf("state: save timer: %w", err)
	}

	for _, chain := range s.Chains.GetAll() {
		if err := saveChain(ctx, tx, chain); err != nil {
			return err
		}
	}

	for chainKey, bucket := range s.Balances.All() {
		for address, bal := range bucket {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO balances (chain_id, address, amount) VALUES (?, ?, ?)`,
				chainKey, address, bal.Amount.String(),
			); err != nil {
				return fmt.Errorf("state: save balance: %w", err)
			}
			for _, nonce := range bal.Nonces {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO balance_nonces (chain_id, address, nonce) VALUES (?, ?, ?)`,
					chainKey, address, nonce.String(),
				); err != nil {
					return fmt.Errorf("state: save nonce: %w", err)
				}
			}
		}
	}

	subsByChain, nextID := s.Subscriptions.AllRaw()
	for chainKey, subs := range subsByChain {
		for _, sub := range subs {
			if err := saveSubscription(ctx, tx, chainKey, sub); err != nil {
				return err
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO subscription_counter (id, next_id) VALUES (1, ?)`, nextID); err != nil {
		return fmt.Errorf("state: save subscription counter: %w", err)
	}

	for _, chainKey := range s.Withdrawals.Chains() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO withdraw_chains (chain_id) VALUES (?)`, chainKey); err != nil {
			return fmt.Errorf("state: save withdraw chain: %w", err)
		}
		chainID, ok := new(big.Int).SetString(chainKey, 10)
		if !ok {
			continue
		}
		for seq, req := range s.Withdrawals.Peek(chainID) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO withdraw_requests (chain_id, seq, amount, receiver) VALUES (?, ?, ?, ?)`,
				chainKey, seq, req.Amount.String(), req.Receiver.Hex(),
			); err != nil {
				return fmt.Errorf("state: save withdraw request: %w", err)
			}
		}
	}

	for _, entry := range s.Whitelist.GetAll() {
		blacklisted := 0
		if entry.IsBlacklisted {
			blacklisted = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO whitelist (address, is_blacklisted) VALUES (?, ?)`, entry.Address, blacklisted,
		); err != nil {
			return fmt.Errorf("state: save whitelist entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_meta (key, value) VALUES ('version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprint(CurrentSchemaVersion),
	); err != nil {
		return fmt.Errorf("state: save schema version: %w", err)
	}

	return tx.Commit()
}

func saveChain(ctx context.Context, tx *sql.Tx, chain chainreg.Chain) error {
	var fee sql.NullString
	if chain.Fee != nil {
		fee = sql.NullString{String: chain.Fee.String(), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO chains (chain_id, rpc, min_balance, block_gas_limit, fee, symbol, multicall_contract)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chain.ChainID.String(), chain.RPC, chain.MinBalance.String(), bigString(chain.BlockGasLimit),
		fee, chain.Symbol, chain.MulticallAddress.Hex(),
	)
	if err != nil {
		return fmt.Errorf("state: save chain %s: %w", chain.ChainID, err)
	}
	return nil
}

func saveSubscription(ctx context.Context, tx *sql.Tx, chainKey string, sub subscription.Subscription) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (id, chain_id, label, owner, contract_addr, frequency, method_name, method_abi,
			method_gas_limit, method_kind, method_pair_id, method_param_type, is_active, last_update)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, chainKey, sub.Label, sub.Owner, sub.ContractAddr, bigString(sub.Frequency),
		sub.Method.Name, sub.Method.ABI, bigString(sub.Method.GasLimit), int(sub.Method.MethodType.Kind),
		sub.Method.MethodType.PairID, sub.Method.MethodType.ParamType,
		boolToInt(sub.Status.IsActive), bigString(sub.Status.LastUpdate),
	)
	if err != nil {
		return fmt.Errorf("state: save subscription %d: %w", sub.ID, err)
	}
	return nil
}

// Load reconstructs a Store from db's snapshot, applying any pending
// migrations for rows written by an older schema version
// (see migrate.go).
func Load(ctx context.Context, db *sql.DB) (*Store, error) {
	version := schemaVersion(ctx, db)

	cfg, timerHandle, err := loadConfig(ctx, db)
	if err != nil {
		return nil, err
	}

	store := New(cfg, timerHandle)

	chains, err := loadChains(ctx, db, version)
	if err != nil {
		return nil, err
	}
	for _, chain := range chains {
		if err := store.AddChain(chainreg.AddRequest{
			ChainID: chain.ChainID, RPC: chain.RPC, MinBalance: chain.MinBalance,
			BlockGasLimit: chain.BlockGasLimit, Fee: chain.Fee, Symbol: chain.Symbol,
			MulticallAddress: chain.MulticallAddress,
		}); err != nil {
			return nil, fmt.Errorf("state: restore chain %s: %w", chain.ChainID, err)
		}
	}

	balances, err := loadBalances(ctx, db)
	if err != nil {
		return nil, err
	}
	store.Balances.Restore(balances)

	subsByChain, nextID, err := loadSubscriptions(ctx, db, version, cfg.TimerFrequency)
	if err != nil {
		return nil, err
	}
	store.Subscriptions.Restore(subsByChain, nextID)

	if err := loadWithdrawals(ctx, db, store.Withdrawals); err != nil {
		return nil, err
	}

	if err := loadWhitelist(ctx, db, store.Whitelist); err != nil {
		return nil, err
	}

	return store, nil
}

func schemaVersion(ctx context.Context, db *sql.DB) int {
	var raw string
	if err := db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&raw); err != nil {
		return 1
	}
	var v int
	fmt.Sscan(raw, &v)
	if v == 0 {
		return 1
	}
	return v
}

func loadConfig(ctx context.Context, db *sql.DB) (GlobalConfig, string, error) {
	var (
		txFee, keyName, timerFreq, pma, controllers, handle string
		subsWallet, subsTotal                               int
	)
	row := db.QueryRowContext(ctx,
		`SELECT tx_fee, key_name, subs_limit_wallet, subs_limit_total, timer_frequency, pma, controllers FROM config WHERE id = 1`)
	err := row.Scan(&txFee, &keyName, &subsWallet, &subsTotal, &timerFreq, &pma, &controllers)
	if err == sql.ErrNoRows {
		return GlobalConfig{TimerFrequency: big.NewInt(1800)}, "initial-handle", nil
	}
	if err != nil {
		return GlobalConfig{}, "", fmt.Errorf("state: load config: %w", err)
	}

	if err := db.QueryRowContext(ctx, `SELECT handle FROM timer WHERE id = 1`).Scan(&handle); err != nil && err != sql.ErrNoRows {
		return GlobalConfig{}, "", fmt.Errorf("state: load timer: %w", err)
	}
	if handle == "" {
		handle = "initial-handle"
	}

	var controllerList []string
	if controllers != "" {
		controllerList = strings.Split(controllers, ",")
	}

	return GlobalConfig{
		TxFee:           parseBig(txFee),
		KeyName:         keyName,
		SubsLimitWallet: subsWallet,
		SubsLimitTotal:  subsTotal,
		TimerFrequency:  parseBigOrDefault(timerFreq, big.NewInt(1800)),
		PMA:             common.HexToAddress(pma),
		Controllers:     controllerList,
	}, handle, nil
}

func loadBalances(ctx context.Context, db *sql.DB) (map[string]map[string]balance.UserBalance, error) {
	rows, err := db.QueryContext(ctx, `SELECT chain_id, address, amount FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("state: load balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]balance.UserBalance)
	for rows.Next() {
		var chainKey, address, amount string
		if err := rows.Scan(&chainKey, &address, &amount); err != nil {
			return nil, fmt.Errorf("state: scan balance: %w", err)
		}
		if out[chainKey] == nil {
			out[chainKey] = make(map[string]balance.UserBalance)
		}
		out[chainKey][address] = balance.UserBalance{Amount: parseBig(amount)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nonceRows, err := db.QueryContext(ctx, `SELECT chain_id, address, nonce FROM balance_nonces`)
	if err != nil {
		return nil, fmt.Errorf("state: load nonces: %w", err)
	}
	defer nonceRows.Close()
	for nonceRows.Next() {
		var chainKey, address, nonce string
		if err := nonceRows.Scan(&chainKey, &address, &nonce); err != nil {
			return nil, fmt.Errorf("state: scan nonce: %w", err)
		}
		if bucket, ok := out[chainKey]; ok {
			if b, ok := bucket[address]; ok {
				b.Nonces = append(b.Nonces, parseBig(nonce))
				bucket[address] = b
			}
		}
	}
	return out, nonceRows.Err()
}

func loadWithdrawals(ctx context.Context, db *sql.DB, queue *withdraw.Queue) error {
	chainRows, err := db.QueryContext(ctx, `SELECT chain_id FROM withdraw_chains`)
	if err != nil {
		return fmt.Errorf("state: load withdraw chains: %w", err)
	}
	defer chainRows.Close()

	var chainKeys []string
	for chainRows.Next() {
		var key string
		if err := chainRows.Scan(&key); err != nil {
			return fmt.Errorf("state: scan withdraw chain: %w", err)
		}
		chainKeys = append(chainKeys, key)
	}
	if err := chainRows.Err(); err != nil {
		return err
	}

	for _, key := range chainKeys {
		chainID, ok := new(big.Int).SetString(key, 10)
		if !ok {
			continue
		}
		queue.InitChain(chainID)

		reqRows, err := db.QueryContext(ctx,
			`SELECT amount, receiver FROM withdraw_requests WHERE chain_id = ? ORDER BY seq ASC`, key)
		if err != nil {
			return fmt.Errorf("state: load withdraw requests: %w", err)
		}
		for reqRows.Next() {
			var amount, receiver string
			if err := reqRows.Scan(&amount, &receiver); err != nil {
				reqRows.Close()
				return fmt.Errorf("state: scan withdraw request: %w", err)
			}
			_ = queue.Push(chainID, withdraw.Request{Amount: parseBig(amount), Receiver: common.HexToAddress(receiver)})
		}
		reqRows.Close()
	}
	return nil
}

func loadWhitelist(ctx context.Context, db *sql.DB, list *whitelist.List) error {
	rows, err := db.QueryContext(ctx, `SELECT address, is_blacklisted FROM whitelist`)
	if err != nil {
		return fmt.Errorf("state: load whitelist: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var address string
		var blacklisted int
		if err := rows.Scan(&address, &blacklisted); err != nil {
			return fmt.Errorf("state: scan whitelist entry: %w", err)
		}
		list.Add(address)
		if blacklisted != 0 {
			list.Blacklist(address)
		}
	}
	return rows.Err()
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

func parseBigOrDefault(s string, def *big.Int) *big.Int {
	if s == "" {
		return new(big.Int).Set(def)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int).Set(def)
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
