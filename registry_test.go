package xevent

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMethod(name string, priority int) *SubscriberMethod {
	return &SubscriberMethod{
		Owner:     reflect.TypeFor[*counterSub](),
		Name:      name,
		EventType: reflect.TypeFor[msg](),
		Priority:  priority,
	}
}

func subscribersOf(subs []*subscription) []any {
	out := make([]any, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.subscriber)
	}
	return out
}

func TestRegistry_PriorityOrderIsStable(t *testing.T) {
	r := newRegistry()

	for _, tc := range []struct {
		name     string
		priority int
	}{{"a", 1}, {"b", 5}, {"c", 5}, {"d", 1}} {
		_, err := r.add(&prioLow{name: tc.name}, []*SubscriberMethod{testMethod("OnEventMsg", tc.priority)})
		require.NoError(t, err)
	}

	var got []string
	for _, s := range r.subscriptionsFor(reflect.TypeFor[msg]()) {
		got = append(got, s.subscriber.(*prioLow).name)
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, got)
	assert.Equal(t, 4, r.count())
}

func TestRegistry_DuplicateLeavesStateUntouched(t *testing.T) {
	r := newRegistry()
	s := &counterSub{}
	subs, err := r.add(s, []*SubscriberMethod{testMethod("OnEventMsg", 0)})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.NotEmpty(t, subs[0].id)

	_, err = r.add(s, []*SubscriberMethod{testMethod("OnEventMsg", 0)})
	var de *DuplicateSubscriptionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, r.count())
}

func TestRegistry_TwoMethodsSameTypeInOneRegistration(t *testing.T) {
	r := newRegistry()
	s := &counterSub{}
	subs, err := r.add(s, []*SubscriberMethod{testMethod("OnEventA", 0), testMethod("OnEventB", 0)})
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.NotEqual(t, subs[0].id, subs[1].id)
	assert.Equal(t, 2, r.count())
}

func TestRegistry_RemoveDeactivatesAndKeepsSnapshots(t *testing.T) {
	r := newRegistry()
	s, peer := &counterSub{}, &counterSub{}
	_, err := r.add(s, []*SubscriberMethod{testMethod("OnEventMsg", 0)})
	require.NoError(t, err)
	_, err = r.add(peer, []*SubscriberMethod{testMethod("OnEventMsg", 0)})
	require.NoError(t, err)

	snapshot := r.subscriptionsFor(reflect.TypeFor[msg]())
	removed, ok := r.remove(s)
	require.True(t, ok)
	require.Len(t, removed, 1)
	assert.False(t, removed[0].active.Load())

	assert.Len(t, snapshot, 2, "readers keep iterating the slice they loaded")
	remaining := subscribersOf(r.subscriptionsFor(reflect.TypeFor[msg]()))
	require.Len(t, remaining, 1)
	assert.Same(t, peer, remaining[0])
	assert.False(t, r.isRegistered(s))
	assert.True(t, r.isRegistered(peer))

	_, ok = r.remove(s)
	assert.False(t, ok)

	_, ok = r.remove(peer)
	require.True(t, ok)
	assert.False(t, r.hasSubscriptions(reflect.TypeFor[msg]()))
}
