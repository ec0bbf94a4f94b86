// Copyright 2024 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors_test

import (
	"testing"

	serr "github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	e1 := serr.New("tt")
	e2 := serr.New("dd")
	e3 := serr.New("dd")
	e := serr.Collect(e1, e2, e3)

	require.ErrorIsf(t, e, e1, "matches the categorizing error")
	require.Equal(t, nil, serr.Unwrap(e), "unwrapping stops here")
	require.ErrorIsf(t, e, e2, "Is matches underlying errors, too")
	require.Equal(t, []error{e2, e3}, e.(*serr.MError).Cause(), "get underlying errors")
	require.NoError(t, serr.Collect(e3), "nil if there is no underlying error")

	e4 := serr.Collect(e1, e2, nil).(*serr.MError)
	require.Len(t, e4.Cause(), 1, "collect non-nil errors only")
	require.NoError(t, serr.Collect(e3, nil, nil), "nil if all errors are nil")
}
