// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 Dataflow 测试的共享工具。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 运行辅助: CollectEvents 带超时地收集事件流，EventTypes /
    FilterEvents / AssertLastEvent 用于断言事件序列
  - 异步断言: AssertEventuallyTrue / WaitFor
  - 数据工具: MustJSON

# 子包

  - testutil/mocks: MockChatClient（对话执行器的 LLM 边界）与
    MockCheckpointStore（可注入错误的检查点存储）
  - testutil/fixtures: 预置检查点与对话样例

# 使用示例

	client := mocks.NewMockChatClient().WithResponse("Taste the feeling.")
	wf, _ := executors.NewWritingWorkflow(client, 0, nil)
	run, _ := wf.RunStream(testutil.TestContext(t), executors.UserPrompt("slogan"))
	events := testutil.CollectEvents(t, run, 5*time.Second)
*/
package testutil
