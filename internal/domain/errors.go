// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrBoardNotFound = errors.New("board not found")
var ErrInvitationNotFound = errors.New("invitation not found")
var ErrInvalidAction = errors.New("invalid action")
var ErrInvalidElement = errors.New("invalid element")
var ErrConcurrentUpdate = errors.New("concurrent board update")
var ErrSessionClosed = errors.New("session closed")
var ErrReconnectFailed = errors.New("reconnection failed")
