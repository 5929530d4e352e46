package depthcache

import "fmt"

func buyKey(marketSymbol string) string  { return fmt.Sprintf("orderbook:%s:buy", marketSymbol) }
func sellKey(marketSymbol string) string { return fmt.Sprintf("orderbook:%s:sell", marketSymbol) }
func lastUpdateKey(marketSymbol string) string {
	return fmt.Sprintf("orderbook:last_update:%s", marketSymbol)
}
func lastSyncKey(marketSymbol string) string {
	return fmt.Sprintf("orderbook:last_sync:%s", marketSymbol)
}
func syncLockKey(marketSymbol string) string { return fmt.Sprintf("sync_lock:%s", marketSymbol) }
