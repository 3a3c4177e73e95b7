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

package fleet

import "errors"

var (
	ErrScanInProgress = errors.New("scan already in progress")
	ErrProxyStopped   = errors.New("proxy stopped")
	ErrManagerStopped = errors.New("fleet manager stopped")
)

// Messages reported through FleetObserver.OnDeviceError.
const (
	MsgDeviceNotFound   = "device not found in fleet manager"
	MsgWorkerStuck      = "worker did not terminate"
	MsgNotConnected     = "instrument not connected"
	MsgPlaceholder      = "command rejected, unresolved placeholder"
	MsgProxyStopped     = "proxy stopped"
	MsgResetFailed      = "device did not accept reset"
	CommandConnect      = "connect"
	CommandShutdown     = "shutdown"
	CommandReset        = "*RST"
	commandPowerReset   = ":SYSTEM:POWER:RESET"
)
