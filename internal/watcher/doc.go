// Package watcher keeps a directory of synonym rule files flowing into
// the store. Each file is named <locale>.txt and holds the locale's
// whole rule set, one "from => to" per line; saving the file replaces
// the locale's rules and queues an index sync.
//
// Watching is hybrid: fsnotify where it works, periodic polling where
// it does not (network mounts, some container volumes). Either way the
// events pass through a debouncer so an editor's save dance (write
// temp, rename, write again) imports once, not three times.
package watcher
