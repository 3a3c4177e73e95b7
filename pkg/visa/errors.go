/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package visa

import "errors"

var (
	ErrEmptyResource       = errors.New("empty resource string")
	ErrUnsupportedResource = errors.New("unsupported resource")
	ErrMalformedResource   = errors.New("malformed resource string")
	ErrSessionClosed       = errors.New("session closed")
	ErrSessionBroken       = errors.New("session transport broken")
	ErrResponseTooLarge    = errors.New("instrument response exceeds limit")
	ErrUSBTMCUnavailable   = errors.New("usbtmc is only available on linux")
	ErrDeviceNotFound      = errors.New("usb device not found")

	// VXI-11 / ONC-RPC errors
	ErrRPCShortReply    = errors.New("short rpc reply")
	ErrRPCXIDMismatch   = errors.New("rpc xid mismatch")
	ErrRPCDenied        = errors.New("rpc call denied")
	ErrRPCNotAccepted   = errors.New("rpc call not accepted")
	ErrRPCFragmentLarge = errors.New("rpc fragment too large")
	ErrPortmapNoService = errors.New("portmapper has no vxi-11 core service")
	ErrVXI11Device      = errors.New("vxi-11 device error")
)
